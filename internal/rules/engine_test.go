package rules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestCompare(t *testing.T) {
	cases := []struct {
		op    string
		value float64
		low   float64
		high  *float64
		want  bool
	}{
		{domain.OpGT, 31, 30, nil, true},
		{domain.OpGT, 30, 30, nil, false},
		{domain.OpGTE, 30, 30, nil, true},
		{domain.OpLT, 29, 30, nil, true},
		{domain.OpLTE, 30, 30, nil, true},
		{domain.OpLTE, 31, 30, nil, false},
		{domain.OpEQ, 30, 30, nil, true},
		{domain.OpNEQ, 30, 30, nil, false},
		{domain.OpNEQ, 31, 30, nil, true},

		// between is inclusive on both bounds
		{domain.OpBetween, 10, 10, f64(20), true},
		{domain.OpBetween, 20, 10, f64(20), true},
		{domain.OpBetween, 15, 10, f64(20), true},
		{domain.OpBetween, 9.999, 10, f64(20), false},
		{domain.OpBetween, 20.001, 10, f64(20), false},

		// outside is the strict complement
		{domain.OpOutside, 10, 10, f64(20), false},
		{domain.OpOutside, 20, 10, f64(20), false},
		{domain.OpOutside, 9.999, 10, f64(20), true},
		{domain.OpOutside, 20.001, 10, f64(20), true},

		// missing high bound never triggers
		{domain.OpBetween, 15, 10, nil, false},
		{domain.OpOutside, 5, 10, nil, false},

		{"bogus", 1, 0, nil, false},
	}
	for _, tc := range cases {
		got := Compare(tc.op, tc.value, tc.low, tc.high)
		assert.Equal(t, tc.want, got, "%v %s [%v, %v]", tc.value, tc.op, tc.low, tc.high)
	}
}

func TestCoerce(t *testing.T) {
	v, ok := coerce(21.5)
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)

	v, ok = coerce("31.2")
	assert.True(t, ok)
	assert.Equal(t, 31.2, v)

	v, ok = coerce(int64(4))
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	_, ok = coerce("not a number")
	assert.False(t, ok)

	_, ok = coerce(map[string]any{})
	assert.False(t, ok)
}

func TestExtractInternal(t *testing.T) {
	entry := domain.DataEntry{
		"temperature": map[string]any{"value": 21.5, "units": "°C"},
		"humidity":    40.0,
		"label":       "ok",
	}

	v, ok := extractInternal(entry, "temperature")
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)

	v, ok = extractInternal(entry, "humidity")
	assert.True(t, ok)
	assert.Equal(t, 40.0, v)

	_, ok = extractInternal(entry, "label")
	assert.False(t, ok)

	_, ok = extractInternal(entry, "absent")
	assert.False(t, ok)

	_, ok = extractInternal(nil, "temperature")
	assert.False(t, ok)
}

func TestExtractExternal(t *testing.T) {
	entry := &domain.LatestEntry{Values: map[string]any{"co2": 850.0}}

	v, ok := extractExternal(entry, "co2")
	assert.True(t, ok)
	assert.Equal(t, 850.0, v)

	_, ok = extractExternal(entry, "absent")
	assert.False(t, ok)

	_, ok = extractExternal(nil, "co2")
	assert.False(t, ok)
}

// fakeStore implements just the operations evaluation touches; anything else
// panics via the embedded nil interface.
type fakeStore struct {
	datastore.Datastore

	rules    []domain.Rule
	internal domain.DataEntry
	external map[string]domain.LatestEntry

	mu      sync.Mutex
	touched []int64
}

func (f *fakeStore) ListEnabledRulesForDevice(_ context.Context, _ string) ([]domain.Rule, error) {
	return f.rules, nil
}

func (f *fakeStore) LatestDeviceData(_ context.Context, _ string) (domain.DataEntry, error) {
	return f.internal, nil
}

func (f *fakeStore) FetchLatestForAllMappings(_ context.Context, _ int) (map[string]domain.LatestEntry, error) {
	return f.external, nil
}

func (f *fakeStore) TouchRuleTriggered(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeStore) touchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.touched)
}

func TestEvaluateDevice_InternalTrigger(t *testing.T) {
	store := &fakeStore{
		rules: []domain.Rule{{
			ID:           1,
			DeviceName:   "node_2_01",
			SourceType:   domain.SourceInternal,
			Field:        "temperature",
			Op:           domain.OpGT,
			ThresholdLow: 30,
			Severity:     "warning",
			Enabled:      true,
		}},
		internal: domain.DataEntry{
			"temperature": map[string]any{"value": 31.0, "units": "°C"},
			"timestamp":   int64(1700000000000),
		},
	}
	engine := NewEngine(store, zap.NewNop())

	triggered, err := engine.EvaluateDevice(context.Background(), "node_2_01")
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, int64(1), triggered[0].RuleID)
	assert.Equal(t, 31.0, triggered[0].Value)
	assert.Equal(t, "warning", triggered[0].Severity)
	assert.Equal(t, domain.SourceInternal, triggered[0].SourceType)

	require.Eventually(t, func() bool { return store.touchedCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestEvaluateDevice_ExternalTrigger(t *testing.T) {
	store := &fakeStore{
		rules: []domain.Rule{{
			ID:            2,
			DeviceName:    "node_1_01",
			SourceType:    domain.SourceExternal,
			Field:         "co2",
			Op:            domain.OpBetween,
			ThresholdLow:  800,
			ThresholdHigh: f64(1200),
			Enabled:       true,
		}},
		external: map[string]domain.LatestEntry{
			"node_1_01": {Values: map[string]any{"co2": 850.0}},
		},
	}
	engine := NewEngine(store, zap.NewNop())

	triggered, err := engine.EvaluateDevice(context.Background(), "node_1_01")
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, 850.0, triggered[0].Value)
}

func TestEvaluateDevice_SkipsMissingField(t *testing.T) {
	store := &fakeStore{
		rules: []domain.Rule{{
			ID:           3,
			DeviceName:   "node_1_01",
			SourceType:   domain.SourceInternal,
			Field:        "pressure",
			Op:           domain.OpGT,
			ThresholdLow: 1000,
			Enabled:      true,
		}},
		internal: domain.DataEntry{"temperature": 21.0},
	}
	engine := NewEngine(store, zap.NewNop())

	triggered, err := engine.EvaluateDevice(context.Background(), "node_1_01")
	require.NoError(t, err)
	assert.Empty(t, triggered)
	assert.Equal(t, 0, store.touchedCount())
}

func TestEvaluateDevice_NoRules(t *testing.T) {
	engine := NewEngine(&fakeStore{}, zap.NewNop())

	triggered, err := engine.EvaluateDevice(context.Background(), "node_1_01")
	require.NoError(t, err)
	assert.NotNil(t, triggered)
	assert.Empty(t, triggered)
}

func TestEvaluateDeviceAgainst_BelowThreshold(t *testing.T) {
	store := &fakeStore{
		rules: []domain.Rule{{
			ID:           4,
			DeviceName:   "node_2_01",
			SourceType:   domain.SourceInternal,
			Field:        "temperature",
			Op:           domain.OpGT,
			ThresholdLow: 30,
			Enabled:      true,
		}},
		internal: domain.DataEntry{"temperature": 29.9},
	}
	engine := NewEngine(store, zap.NewNop())

	triggered, err := engine.EvaluateDeviceAgainst(context.Background(), "node_2_01", nil)
	require.NoError(t, err)
	assert.Empty(t, triggered)
}
