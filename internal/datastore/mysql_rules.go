package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

func (m *MySQL) listRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
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

func (m *MySQL) ListRules(ctx context.Context) ([]domain.Rule, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	return m.listRules(ctx, "SELECT "+ruleColumns+" FROM device_rules ORDER BY id")
}

// ListEnabledRulesForDevice returns enabled rules in evaluation order
// (ascending rule id).
func (m *MySQL) ListEnabledRulesForDevice(ctx context.Context, device string) ([]domain.Rule, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	return m.listRules(ctx,
		"SELECT "+ruleColumns+" FROM device_rules WHERE device_name=? AND enabled=1 ORDER BY id", device)
}

func (m *MySQL) getRule(ctx context.Context, id int64) (*domain.Rule, error) {
	r, err := scanRule(m.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM device_rules WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule")
	}
	if err != nil {
		return nil, queryFailed("failed to get rule", err)
	}
	return r, nil
}

func (m *MySQL) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	return m.getRule(ctx, id)
}

func (m *MySQL) CreateRule(ctx context.Context, in domain.RuleInput) (*domain.Rule, error) {
	if err := m.gate.Await(ctx); err != nil {
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
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO device_rules(device_name, source_type, field, op, threshold_low, threshold_high, severity, enabled, description)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		in.DeviceName, in.SourceType, in.Field, in.Op, *in.ThresholdLow, in.ThresholdHigh,
		severity, enabled, nullString(in.Description),
	)
	if err != nil {
		if isMySQLForeignKeyViolation(err) {
			return nil, validationf("device does not exist")
		}
		return nil, queryFailed("failed to create rule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, queryFailed("failed to resolve rule id", err)
	}
	return m.getRule(ctx, id)
}

func (m *MySQL) UpdateRule(ctx context.Context, id int64, patch domain.RulePatch) (*domain.Rule, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateRulePatch(patch); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
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
		return m.getRule(ctx, id)
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, id)

	if _, err := m.db.ExecContext(ctx,
		"UPDATE device_rules SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
		return nil, queryFailed("failed to update rule", err)
	}
	return m.getRule(ctx, id)
}

func (m *MySQL) DeleteRule(ctx context.Context, id int64) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, "DELETE FROM device_rules WHERE id=?", id)
	if err != nil {
		return queryFailed("failed to delete rule", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("rule")
	}
	return nil
}

// TouchRuleTriggered stamps last_triggered_at. Best-effort bookkeeping.
func (m *MySQL) TouchRuleTriggered(ctx context.Context, id int64) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, "UPDATE device_rules SET last_triggered_at=NOW() WHERE id=?", id); err != nil {
		return queryFailed("failed to stamp rule trigger", err)
	}
	return nil
}
