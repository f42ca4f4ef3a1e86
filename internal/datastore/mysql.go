package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/config"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// MySQL is the MySQL datastore engine. It carries the same operation set and
// error taxonomy as the Postgres engine; the dialect differences (backtick
// quoting, ? placeholders, no RETURNING, JSON value-column storage) are
// confined to the mysql_* files.
type MySQL struct {
	db    *sql.DB
	gate  *ReadyGate
	retry config.RetryConfig
	open  func() (*sql.DB, error)
	seed  bool
	// database is the schema fallback for data sources without one.
	database string
	mirror   Mirror
	logger   *zap.Logger
}

var _ Datastore = (*MySQL)(nil)

// NewMySQL builds the engine. Call Connect to start the resilience loop;
// every operation awaits the readiness gate before touching the backend.
func NewMySQL(cfg config.DatabaseConfig, retry config.RetryConfig, seedDevices bool, logger *zap.Logger) *MySQL {
	return &MySQL{
		gate:     newReadyGate(),
		retry:    retry,
		open:     mysqlOpener(cfg),
		seed:     seedDevices,
		database: cfg.Database,
		logger:   logger,
	}
}

func mysqlOpener(cfg config.DatabaseConfig) func() (*sql.DB, error) {
	return func() (*sql.DB, error) {
		db, err := sql.Open("mysql", cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

// SetMirror attaches the registry snapshot side channel.
func (m *MySQL) SetMirror(mir Mirror) { m.mirror = mir }

func (m *MySQL) Engine() string   { return "mysql" }
func (m *MySQL) Gate() *ReadyGate { return m.gate }

func (m *MySQL) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *MySQL) mirrorDevice(dev domain.Device) {
	if m.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.mirror.UpsertDevice(ctx, dev)
	}()
}

// Connect starts the background retry loop and returns the readiness gate,
// with the same resolve/reject contract as the Postgres engine.
func (m *MySQL) Connect(ctx context.Context) *ReadyGate {
	go m.connectWithRetry(ctx)
	return m.gate
}

func (m *MySQL) connectWithRetry(ctx context.Context) {
	delay := m.retry.InitialDelay
	for attempt := 1; ; attempt++ {
		db, err := m.open()
		if err == nil {
			m.db = db
			m.logger.Info("mysql connected", zap.Int("attempt", attempt))
			if initErr := m.initSchema(ctx); initErr != nil {
				m.logger.Error("mysql schema init failed", zap.Error(initErr))
				m.gate.reject(initErr)
				return
			}
			m.logger.Info("mysql schema ready")
			m.gate.resolve()
			return
		}

		if !isTransientConnectError(err) || attempt >= m.retry.MaxAttempts {
			m.logger.Error("mysql connection failed (final)",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			m.gate.reject(err)
			return
		}

		m.logger.Warn("mysql connect attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.gate.reject(ctx.Err())
			return
		}
		delay = nextDelay(delay, m.retry.MaxDelay)
	}
}

func isMySQLUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func isMySQLForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1452
}

func (m *MySQL) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name")
	if err != nil {
		return nil, queryFailed("failed to list devices", err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, queryFailed("failed to scan device", err)
		}
		devices = append(devices, *dev)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate devices", err)
	}
	return devices, nil
}

func (m *MySQL) getDevice(ctx context.Context, name string) (*domain.Device, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE name = ?", name)
	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("device")
	}
	if err != nil {
		return nil, queryFailed("failed to get device", err)
	}
	return dev, nil
}

func (m *MySQL) GetDevice(ctx context.Context, name string) (*domain.Device, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	return m.getDevice(ctx, name)
}

// CreateDevice inserts and re-selects; MySQL has no RETURNING clause.
func (m *MySQL) CreateDevice(ctx context.Context, in domain.Device) (*domain.Device, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO devices(name, type, floor, pos_x, pos_y, pos_z, pinned) VALUES(?,?,?,?,?,?,?)",
		in.Name, nullString(in.Type), in.Floor, in.Position.X, in.Position.Y, in.Position.Z, in.Pinned,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return nil, conflict("device name already exists")
		}
		return nil, queryFailed("failed to create device", err)
	}
	dev, err := m.getDevice(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	m.mirrorDevice(*dev)
	return dev, nil
}

func (m *MySQL) UpdateDevice(ctx context.Context, name string, upd domain.DeviceUpdate) (*domain.Device, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, validationf("no fields to update")
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if upd.Type != nil {
		set("type", *upd.Type)
	}
	if upd.Floor != nil {
		set("floor", *upd.Floor)
	}
	if upd.Position != nil {
		set("pos_x", upd.Position.X)
		set("pos_y", upd.Position.Y)
		set("pos_z", upd.Position.Z)
	}
	if upd.Pinned != nil {
		set("pinned", *upd.Pinned)
	}
	sets = append(sets, "updated_at=NOW()")
	args = append(args, name)

	if _, err := m.db.ExecContext(ctx,
		"UPDATE devices SET "+strings.Join(sets, ",")+" WHERE name=?", args...); err != nil {
		return nil, queryFailed("failed to update device", err)
	}
	dev, err := m.getDevice(ctx, name)
	if err != nil {
		return nil, err
	}
	m.mirrorDevice(*dev)
	return dev, nil
}

func (m *MySQL) InsertDeviceData(ctx context.Context, name string, entry domain.DataEntry) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	var ts int64
	switch v := entry["timestamp"].(type) {
	case int64:
		ts = v
	case float64:
		ts = int64(v)
	default:
		ts = time.Now().UnixMilli()
		entry["timestamp"] = ts
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return validationf("payload not serializable: %v", err)
	}
	_, err = m.db.ExecContext(ctx,
		"INSERT INTO device_data(device_name, timestamp, payload) VALUES(?,?,?)",
		name, ts, payload,
	)
	if err != nil {
		if isMySQLForeignKeyViolation(err) {
			return notFound("device")
		}
		return queryFailed("failed to insert device data", err)
	}
	return nil
}

func (m *MySQL) LatestDeviceData(ctx context.Context, name string) (domain.DataEntry, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	var payload []byte
	var ts int64
	err := m.db.QueryRowContext(ctx,
		"SELECT payload, timestamp FROM device_data WHERE device_name=? ORDER BY timestamp DESC LIMIT 1",
		name,
	).Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed("failed to fetch latest device data", err)
	}
	return decodeDataEntry(payload, ts)
}

func (m *MySQL) DeviceHistory(ctx context.Context, name string, from, to int64, limit int) ([]domain.DataEntry, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT payload, timestamp FROM device_data WHERE device_name=? AND timestamp BETWEEN ? AND ? ORDER BY timestamp DESC LIMIT ?",
		name, from, to, limit,
	)
	if err != nil {
		return nil, queryFailed("failed to query device history", err)
	}
	defer rows.Close()

	history := []domain.DataEntry{}
	for rows.Next() {
		var payload []byte
		var ts int64
		if err := rows.Scan(&payload, &ts); err != nil {
			return nil, queryFailed("failed to scan device data", err)
		}
		entry, err := decodeDataEntry(payload, ts)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate device history", err)
	}
	return history, nil
}

func (m *MySQL) DeleteDeviceHistory(ctx context.Context, name string) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, "DELETE FROM device_data WHERE device_name=?", name); err != nil {
		return queryFailed("failed to delete device history", err)
	}
	return nil
}
