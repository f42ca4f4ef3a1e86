package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

const ruleColumns = `id, device_name, source_type, field, op, threshold_low,
	threshold_high, severity, enabled, description, last_triggered_at,
	created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*domain.Rule, error) {
	var r domain.Rule
	var high sql.NullFloat64
	var description sql.NullString
	var lastTriggered sql.NullTime
	if err := row.Scan(&r.ID, &r.DeviceName, &r.SourceType, &r.Field, &r.Op,
		&r.ThresholdLow, &high, &r.Severity, &r.Enabled, &description,
		&lastTriggered, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if high.Valid {
		v := high.Float64
		r.ThresholdHigh = &v
	}
	r.Description = description.String
	if lastTriggered.Valid {
		t := lastTriggered.Time
		r.LastTriggeredAt = &t
	}
	return &r, nil
}

func (p *Postgres) listRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryFailed("failed to list rules", err)
	}
	defer rows.Close()

	rules := []domain.Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, queryFailed("failed to scan rule", err)
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate rules", err)
	}
	return rules, nil
}

func (p *Postgres) ListRules(ctx context.Context) ([]domain.Rule, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	return p.listRules(ctx, "SELECT "+ruleColumns+" FROM device_rules ORDER BY id")
}

// ListEnabledRulesForDevice returns enabled rules in evaluation order
// (ascending rule id).
func (p *Postgres) ListEnabledRulesForDevice(ctx context.Context, device string) ([]domain.Rule, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	return p.listRules(ctx,
		"SELECT "+ruleColumns+" FROM device_rules WHERE device_name=$1 AND enabled=true ORDER BY id", device)
}

func (p *Postgres) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	r, err := scanRule(p.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM device_rules WHERE id=$1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule")
	}
	if err != nil {
		return nil, queryFailed("failed to get rule", err)
	}
	return r, nil
}

func validOp(op string) bool {
	for _, o := range domain.ValidOps {
		if op == o {
			return true
		}
	}
	return false
}

func validateRuleInput(in domain.RuleInput) error {
	switch {
	case in.DeviceName == "":
		return validationf("device_name is required")
	case in.SourceType != domain.SourceInternal && in.SourceType != domain.SourceExternal:
		return validationf("source_type must be 'internal' or 'external'")
	case in.Field == "":
		return validationf("field is required")
	case !validOp(in.Op):
		return validationf("invalid op %q", in.Op)
	case in.ThresholdLow == nil:
		return validationf("threshold_low is required")
	}
	if (in.Op == domain.OpBetween || in.Op == domain.OpOutside) && in.ThresholdHigh == nil {
		return validationf("threshold_high is required for between/outside")
	}
	return nil
}

func (p *Postgres) CreateRule(ctx context.Context, in domain.RuleInput) (*domain.Rule, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateRuleInput(in); err != nil {
		return nil, err
	}
	severity := in.Severity
	if severity == "" {
		severity = "info"
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO device_rules(device_name, source_type, field, op, threshold_low, threshold_high, severity, enabled, description)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+ruleColumns,
		in.DeviceName, in.SourceType, in.Field, in.Op, *in.ThresholdLow, in.ThresholdHigh,
		severity, enabled, nullString(in.Description),
	)
	r, err := scanRule(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, validationf("device does not exist")
		}
		return nil, queryFailed("failed to create rule", err)
	}
	return r, nil
}

func validateRulePatch(patch domain.RulePatch) error {
	if patch.SourceType != nil &&
		*patch.SourceType != domain.SourceInternal && *patch.SourceType != domain.SourceExternal {
		return validationf("source_type must be 'internal' or 'external'")
	}
	if patch.Op != nil && !validOp(*patch.Op) {
		return validationf("invalid op %q", *patch.Op)
	}
	return nil
}

func (p *Postgres) UpdateRule(ctx context.Context, id int64, patch domain.RulePatch) (*domain.Rule, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateRulePatch(patch); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	n := 1
	set := func(col string, v any) {
		sets = append(sets, col+"=$"+strconv.Itoa(n))
		args = append(args, v)
		n++
	}
	if patch.DeviceName != nil {
		set("device_name", *patch.DeviceName)
	}
	if patch.SourceType != nil {
		set("source_type", *patch.SourceType)
	}
	if patch.Field != nil {
		set("field", *patch.Field)
	}
	if patch.Op != nil {
		set("op", *patch.Op)
	}
	if patch.ThresholdLow != nil {
		set("threshold_low", *patch.ThresholdLow)
	}
	if patch.ThresholdHigh != nil {
		set("threshold_high", *patch.ThresholdHigh)
	}
	if patch.Severity != nil {
		set("severity", *patch.Severity)
	}
	if patch.Enabled != nil {
		set("enabled", *patch.Enabled)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if len(sets) == 0 {
		return p.GetRule(ctx, id)
	}
	sets = append(sets, "updated_at=now()")
	args = append(args, id)

	query := "UPDATE device_rules SET " + strings.Join(sets, ",") +
		" WHERE id=$" + strconv.Itoa(n) + " RETURNING " + ruleColumns
	r, err := scanRule(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule")
	}
	if err != nil {
		return nil, queryFailed("failed to update rule", err)
	}
	return r, nil
}

func (p *Postgres) DeleteRule(ctx context.Context, id int64) error {
	if err := p.gate.Await(ctx); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, "DELETE FROM device_rules WHERE id=$1", id)
	if err != nil {
		return queryFailed("failed to delete rule", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("rule")
	}
	return nil
}

// TouchRuleTriggered stamps last_triggered_at. Best-effort bookkeeping.
func (p *Postgres) TouchRuleTriggered(ctx context.Context, id int64) error {
	if err := p.gate.Await(ctx); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "UPDATE device_rules SET last_triggered_at=now() WHERE id=$1", id); err != nil {
		return queryFailed("failed to stamp rule trigger", err)
	}
	return nil
}
