package rules

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Engine evaluates a device's enabled threshold rules against its latest
// internal payload and its latest externally-mapped values. The engine holds
// no state between cycles; every evaluation re-fetches from the datastore.
type Engine struct {
	store  datastore.Datastore
	logger *zap.Logger
}

func NewEngine(store datastore.Datastore, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Compare applies a rule operator. between is inclusive on both bounds;
// outside is the strict complement. high is only consulted for
// between/outside (validation guarantees it is set for those).
func Compare(op string, value, low float64, high *float64) bool {
	switch op {
	case domain.OpGT:
		return value > low
	case domain.OpGTE:
		return value >= low
	case domain.OpLT:
		return value < low
	case domain.OpLTE:
		return value <= low
	case domain.OpEQ:
		return value == low
	case domain.OpNEQ:
		return value != low
	case domain.OpBetween:
		return high != nil && value >= low && value <= *high
	case domain.OpOutside:
		return high != nil && (value < low || value > *high)
	default:
		return false
	}
}

// coerce folds a payload value to a number. Supports raw numerics and
// numeric strings; anything else is skipped.
func coerce(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// extractInternal reads a field from a native payload, where the field may be
// a raw scalar or a {value, units} object.
func extractInternal(entry domain.DataEntry, field string) (float64, bool) {
	if entry == nil {
		return 0, false
	}
	raw, ok := entry[field]
	if !ok || raw == nil {
		return 0, false
	}
	if obj, ok := raw.(map[string]any); ok {
		raw, ok = obj["value"]
		if !ok {
			return 0, false
		}
	}
	return coerce(raw)
}

// extractExternal reads a value column from a batched latest entry.
func extractExternal(entry *domain.LatestEntry, field string) (float64, bool) {
	if entry == nil || entry.Values == nil {
		return 0, false
	}
	raw, ok := entry.Values[field]
	if !ok || raw == nil {
		return 0, false
	}
	return coerce(raw)
}

// EvaluateDevice runs an ad-hoc evaluation, fetching the external batch
// itself. A failing external fetch only silences external-source rules.
func (e *Engine) EvaluateDevice(ctx context.Context, device string) ([]domain.TriggerEvent, error) {
	var external *domain.LatestEntry
	batch, err := e.store.FetchLatestForAllMappings(ctx, datastore.DefaultLookbackDays)
	if err != nil {
		e.logger.Debug("external latest fetch failed during evaluation",
			zap.String("device", device),
			zap.Error(err),
		)
	} else if entry, ok := batch[device]; ok {
		external = &entry
	}
	return e.EvaluateDeviceAgainst(ctx, device, external)
}

// EvaluateDeviceAgainst evaluates with a caller-supplied external entry (the
// broadcast loop reuses its batched fetch). Triggers are returned in rule
// evaluation order. Rules whose field is absent or non-numeric are skipped,
// not failed.
func (e *Engine) EvaluateDeviceAgainst(ctx context.Context, device string, external *domain.LatestEntry) ([]domain.TriggerEvent, error) {
	rules, err := e.store.ListEnabledRulesForDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return []domain.TriggerEvent{}, nil
	}

	internal, err := e.store.LatestDeviceData(ctx, device)
	if err != nil {
		e.logger.Debug("latest internal data fetch failed during evaluation",
			zap.String("device", device),
			zap.Error(err),
		)
	}

	now := time.Now().UnixMilli()
	triggered := []domain.TriggerEvent{}
	for _, r := range rules {
		var value float64
		var ok bool
		if r.SourceType == domain.SourceInternal {
			value, ok = extractInternal(internal, r.Field)
		} else {
			value, ok = extractExternal(external, r.Field)
		}
		if !ok {
			continue
		}
		if !Compare(r.Op, value, r.ThresholdLow, r.ThresholdHigh) {
			continue
		}

		triggered = append(triggered, domain.TriggerEvent{
			RuleID:        r.ID,
			DeviceName:    r.DeviceName,
			Field:         r.Field,
			Op:            r.Op,
			ThresholdLow:  r.ThresholdLow,
			ThresholdHigh: r.ThresholdHigh,
			Severity:      r.Severity,
			Value:         value,
			SourceType:    r.SourceType,
			Description:   r.Description,
			Timestamp:     now,
		})
		e.touchAsync(r.ID)
	}
	return triggered, nil
}

// touchAsync stamps last_triggered_at without blocking or failing the
// evaluation result.
func (e *Engine) touchAsync(ruleID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.TouchRuleTriggered(ctx, ruleID); err != nil {
			e.logger.Debug("failed to stamp rule trigger time",
				zap.Int64("rule_id", ruleID),
				zap.Error(err),
			)
		}
	}()
}
