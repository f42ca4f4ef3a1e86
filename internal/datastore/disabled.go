package datastore

import (
	"context"
	"errors"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Disabled is the no-backend engine: every operation fails fast with a
// KindUnavailable error. Used when the service runs without a database
// (DB_ENGINE=disabled), e.g. while serving only static collaborators.
type Disabled struct {
	gate *ReadyGate
}

var _ Datastore = (*Disabled)(nil)

var errDisabled = errors.New("datastore disabled")

func NewDisabled() *Disabled {
	g := newReadyGate()
	g.reject(errDisabled)
	return &Disabled{gate: g}
}

func (d *Disabled) Engine() string   { return "disabled" }
func (d *Disabled) Gate() *ReadyGate { return d.gate }
func (d *Disabled) Close() error     { return nil }

func (d *Disabled) err() error {
	return &Error{Kind: KindUnavailable, Msg: "datastore disabled"}
}

func (d *Disabled) ListDevices(context.Context) ([]domain.Device, error) { return nil, d.err() }
func (d *Disabled) GetDevice(context.Context, string) (*domain.Device, error) {
	return nil, d.err()
}
func (d *Disabled) CreateDevice(context.Context, domain.Device) (*domain.Device, error) {
	return nil, d.err()
}
func (d *Disabled) UpdateDevice(context.Context, string, domain.DeviceUpdate) (*domain.Device, error) {
	return nil, d.err()
}
func (d *Disabled) InsertDeviceData(context.Context, string, domain.DataEntry) error { return d.err() }
func (d *Disabled) LatestDeviceData(context.Context, string) (domain.DataEntry, error) {
	return nil, d.err()
}
func (d *Disabled) DeviceHistory(context.Context, string, int64, int64, int) ([]domain.DataEntry, error) {
	return nil, d.err()
}
func (d *Disabled) DeleteDeviceHistory(context.Context, string) error { return d.err() }
func (d *Disabled) ListDataSources(context.Context) ([]domain.DataSource, error) {
	return nil, d.err()
}
func (d *Disabled) CreateDataSource(context.Context, domain.DataSourceInput) (*domain.DataSource, error) {
	return nil, d.err()
}
func (d *Disabled) UpdateDataSource(context.Context, int64, domain.DataSourcePatch) (*domain.DataSource, error) {
	return nil, d.err()
}
func (d *Disabled) DeleteDataSource(context.Context, int64) error { return d.err() }
func (d *Disabled) ListTables(context.Context, int64) ([]string, error) {
	return nil, d.err()
}
func (d *Disabled) ListColumns(context.Context, int64, string) ([]domain.ColumnInfo, error) {
	return nil, d.err()
}
func (d *Disabled) ListMappings(context.Context) ([]domain.Mapping, error) { return nil, d.err() }
func (d *Disabled) CreateMapping(context.Context, domain.MappingInput) (*domain.Mapping, error) {
	return nil, d.err()
}
func (d *Disabled) UpdateMapping(context.Context, int64, domain.MappingPatch) (*domain.Mapping, error) {
	return nil, d.err()
}
func (d *Disabled) DeleteMapping(context.Context, int64) error { return d.err() }
func (d *Disabled) VerifyMapping(context.Context, domain.MappingInput) (*domain.VerifyResult, error) {
	return nil, d.err()
}
func (d *Disabled) FetchDeviceTimeseries(context.Context, string, int64, int64, int) (*domain.Timeseries, error) {
	return nil, d.err()
}
func (d *Disabled) FetchLatestForAllMappings(context.Context, int) (map[string]domain.LatestEntry, error) {
	return nil, d.err()
}
func (d *Disabled) ListRules(context.Context) ([]domain.Rule, error) { return nil, d.err() }
func (d *Disabled) ListEnabledRulesForDevice(context.Context, string) ([]domain.Rule, error) {
	return nil, d.err()
}
func (d *Disabled) GetRule(context.Context, int64) (*domain.Rule, error) { return nil, d.err() }
func (d *Disabled) CreateRule(context.Context, domain.RuleInput) (*domain.Rule, error) {
	return nil, d.err()
}
func (d *Disabled) UpdateRule(context.Context, int64, domain.RulePatch) (*domain.Rule, error) {
	return nil, d.err()
}
func (d *Disabled) DeleteRule(context.Context, int64) error         { return d.err() }
func (d *Disabled) TouchRuleTriggered(context.Context, int64) error { return d.err() }
