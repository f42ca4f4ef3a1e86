package datastore

import (
	"context"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Default query bounds.
const (
	DefaultHistoryLimit    = 10000
	DefaultTimeseriesLimit = 2000
	MaxTimeseriesLimit     = 10000
	DefaultLookbackDays    = 7
	MaxLookbackDays        = 30
)

// Datastore is the unified, engine-agnostic operation set. One implementation
// exists per backend; the backend is selected once at process start.
//
// When a device has more than one mapping, FetchDeviceTimeseries and the rule
// engine's external lookup both use the mapping with the lowest id.
type Datastore interface {
	// Engine returns the backend name ("postgres", "mysql", "disabled").
	Engine() string
	// Gate exposes the readiness handle for health checks.
	Gate() *ReadyGate

	ListDevices(ctx context.Context) ([]domain.Device, error)
	GetDevice(ctx context.Context, name string) (*domain.Device, error)
	CreateDevice(ctx context.Context, dev domain.Device) (*domain.Device, error)
	UpdateDevice(ctx context.Context, name string, upd domain.DeviceUpdate) (*domain.Device, error)

	InsertDeviceData(ctx context.Context, name string, entry domain.DataEntry) error
	LatestDeviceData(ctx context.Context, name string) (domain.DataEntry, error)
	DeviceHistory(ctx context.Context, name string, from, to int64, limit int) ([]domain.DataEntry, error)
	DeleteDeviceHistory(ctx context.Context, name string) error

	ListDataSources(ctx context.Context) ([]domain.DataSource, error)
	CreateDataSource(ctx context.Context, in domain.DataSourceInput) (*domain.DataSource, error)
	UpdateDataSource(ctx context.Context, id int64, patch domain.DataSourcePatch) (*domain.DataSource, error)
	// DeleteDataSource returns a KindInUse error while any mapping still
	// references the data source.
	DeleteDataSource(ctx context.Context, id int64) error
	ListTables(ctx context.Context, dataSourceID int64) ([]string, error)
	ListColumns(ctx context.Context, dataSourceID int64, table string) ([]domain.ColumnInfo, error)

	ListMappings(ctx context.Context) ([]domain.Mapping, error)
	CreateMapping(ctx context.Context, in domain.MappingInput) (*domain.Mapping, error)
	UpdateMapping(ctx context.Context, id int64, patch domain.MappingPatch) (*domain.Mapping, error)
	DeleteMapping(ctx context.Context, id int64) error
	// VerifyMapping runs a bounded sample query (<=5 rows) against the
	// candidate table and columns without persisting anything.
	VerifyMapping(ctx context.Context, in domain.MappingInput) (*domain.VerifyResult, error)

	// FetchDeviceTimeseries returns rows in ascending timestamp order.
	FetchDeviceTimeseries(ctx context.Context, device string, from, to int64, limit int) (*domain.Timeseries, error)
	// FetchLatestForAllMappings groups mappings by query shape and issues one
	// rank-1 query per group, bounded to the lookback window (days).
	FetchLatestForAllMappings(ctx context.Context, lookbackDays int) (map[string]domain.LatestEntry, error)

	ListRules(ctx context.Context) ([]domain.Rule, error)
	ListEnabledRulesForDevice(ctx context.Context, device string) ([]domain.Rule, error)
	GetRule(ctx context.Context, id int64) (*domain.Rule, error)
	CreateRule(ctx context.Context, in domain.RuleInput) (*domain.Rule, error)
	UpdateRule(ctx context.Context, id int64, patch domain.RulePatch) (*domain.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	// TouchRuleTriggered stamps last_triggered_at = now. Best-effort
	// bookkeeping: callers ignore the error beyond logging.
	TouchRuleTriggered(ctx context.Context, id int64) error

	Close() error
}
