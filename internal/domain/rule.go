package domain

import "time"

// Rule source types.
const (
	SourceInternal = "internal"
	SourceExternal = "external"
)

// Rule operators.
const (
	OpGT      = ">"
	OpGTE     = ">="
	OpLT      = "<"
	OpLTE     = "<="
	OpEQ      = "="
	OpNEQ     = "!="
	OpBetween = "between"
	OpOutside = "outside"
)

// ValidOps lists every supported rule operator.
var ValidOps = []string{OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNEQ, OpBetween, OpOutside}

// Rule is a threshold rule bound to one device. ThresholdHigh is required for
// the between/outside operators and ignored otherwise.
type Rule struct {
	ID              int64      `json:"id"`
	DeviceName      string     `json:"device_name"`
	SourceType      string     `json:"source_type"`
	Field           string     `json:"field"`
	Op              string     `json:"op"`
	ThresholdLow    float64    `json:"threshold_low"`
	ThresholdHigh   *float64   `json:"threshold_high"`
	Severity        string     `json:"severity"`
	Enabled         bool       `json:"enabled"`
	Description     string     `json:"description,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RuleInput is the create payload for a rule.
type RuleInput struct {
	DeviceName    string   `json:"device_name"`
	SourceType    string   `json:"source_type"`
	Field         string   `json:"field"`
	Op            string   `json:"op"`
	ThresholdLow  *float64 `json:"threshold_low"`
	ThresholdHigh *float64 `json:"threshold_high"`
	Severity      string   `json:"severity"`
	Enabled       *bool    `json:"enabled"`
	Description   string   `json:"description"`
}

// RulePatch carries a partial rule update.
type RulePatch struct {
	DeviceName    *string  `json:"device_name"`
	SourceType    *string  `json:"source_type"`
	Field         *string  `json:"field"`
	Op            *string  `json:"op"`
	ThresholdLow  *float64 `json:"threshold_low"`
	ThresholdHigh *float64 `json:"threshold_high"`
	Severity      *string  `json:"severity"`
	Enabled       *bool    `json:"enabled"`
	Description   *string  `json:"description"`
}

// TriggerEvent is an ephemeral rule-trigger record produced by evaluation.
// It is broadcast to stream subscribers and never persisted beyond the
// triggering rule's last_triggered_at timestamp.
type TriggerEvent struct {
	RuleID        int64    `json:"id"`
	DeviceName    string   `json:"device_name"`
	Field         string   `json:"field"`
	Op            string   `json:"op"`
	ThresholdLow  float64  `json:"threshold_low"`
	ThresholdHigh *float64 `json:"threshold_high"`
	Severity      string   `json:"severity"`
	Value         float64  `json:"value"`
	SourceType    string   `json:"source_type"`
	Description   string   `json:"description,omitempty"`
	Timestamp     int64    `json:"timestamp"`
}
