package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/config"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Mirror is the best-effort registry snapshot side channel. Implementations
// must never block the caller; failures are logged, not propagated.
type Mirror interface {
	UpsertDevice(ctx context.Context, dev domain.Device)
}

// Postgres is the Postgres datastore engine.
type Postgres struct {
	db     *sql.DB
	gate   *ReadyGate
	retry  config.RetryConfig
	open   func() (*sql.DB, error)
	seed   bool
	mirror Mirror
	logger *zap.Logger
}

var _ Datastore = (*Postgres)(nil)

// NewPostgres builds the engine. Call Connect to start the resilience loop;
// every operation awaits the readiness gate before touching the backend.
func NewPostgres(cfg config.DatabaseConfig, retry config.RetryConfig, seedDevices bool, logger *zap.Logger) *Postgres {
	return &Postgres{
		gate:   newReadyGate(),
		retry:  retry,
		open:   defaultOpener(cfg),
		seed:   seedDevices,
		logger: logger,
	}
}

// SetMirror attaches the registry snapshot side channel.
func (p *Postgres) SetMirror(m Mirror) { p.mirror = m }

func (p *Postgres) Engine() string   { return "postgres" }
func (p *Postgres) Gate() *ReadyGate { return p.gate }

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *Postgres) mirrorDevice(dev domain.Device) {
	if p.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.mirror.UpsertDevice(ctx, dev)
	}()
}

const deviceColumns = "name, type, floor, pos_x, pos_y, pos_z, pinned"

func scanDevice(row interface{ Scan(...any) error }) (*domain.Device, error) {
	var dev domain.Device
	var devType sql.NullString
	if err := row.Scan(&dev.Name, &devType, &dev.Floor,
		&dev.Position.X, &dev.Position.Y, &dev.Position.Z, &dev.Pinned); err != nil {
		return nil, err
	}
	dev.Type = devType.String
	return &dev, nil
}

func (p *Postgres) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name")
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

func (p *Postgres) GetDevice(ctx context.Context, name string) (*domain.Device, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE name = $1", name)
	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("device")
	}
	if err != nil {
		return nil, queryFailed("failed to get device", err)
	}
	return dev, nil
}

func (p *Postgres) CreateDevice(ctx context.Context, in domain.Device) (*domain.Device, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx,
		"INSERT INTO devices(name, type, floor, pos_x, pos_y, pos_z, pinned) VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING "+deviceColumns,
		in.Name, nullString(in.Type), in.Floor, in.Position.X, in.Position.Y, in.Position.Z, in.Pinned,
	)
	dev, err := scanDevice(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("device name already exists")
		}
		return nil, queryFailed("failed to create device", err)
	}
	p.mirrorDevice(*dev)
	return dev, nil
}

func (p *Postgres) UpdateDevice(ctx context.Context, name string, upd domain.DeviceUpdate) (*domain.Device, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, validationf("no fields to update")
	}

	var sets []string
	var args []any
	n := 1
	set := func(col string, v any) {
		sets = append(sets, col+"=$"+strconv.Itoa(n))
		args = append(args, v)
		n++
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
	sets = append(sets, "updated_at=now()")
	args = append(args, name)

	query := "UPDATE devices SET " + strings.Join(sets, ",") +
		" WHERE name=$" + strconv.Itoa(n) + " RETURNING " + deviceColumns
	dev, err := scanDevice(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("device")
	}
	if err != nil {
		return nil, queryFailed("failed to update device", err)
	}
	p.mirrorDevice(*dev)
	return dev, nil
}

func (p *Postgres) InsertDeviceData(ctx context.Context, name string, entry domain.DataEntry) error {
	if err := p.gate.Await(ctx); err != nil {
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
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO device_data(device_name, timestamp, payload) VALUES($1,$2,$3)",
		name, ts, payload,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return notFound("device")
		}
		return queryFailed("failed to insert device data", err)
	}
	return nil
}

func (p *Postgres) LatestDeviceData(ctx context.Context, name string) (domain.DataEntry, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	var payload []byte
	var ts int64
	err := p.db.QueryRowContext(ctx,
		"SELECT payload, timestamp FROM device_data WHERE device_name=$1 ORDER BY timestamp DESC LIMIT 1",
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

func (p *Postgres) DeviceHistory(ctx context.Context, name string, from, to int64, limit int) ([]domain.DataEntry, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := p.db.QueryContext(ctx,
		"SELECT payload, timestamp FROM device_data WHERE device_name=$1 AND timestamp BETWEEN $2 AND $3 ORDER BY timestamp DESC LIMIT $4",
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

func (p *Postgres) DeleteDeviceHistory(ctx context.Context, name string) error {
	if err := p.gate.Await(ctx); err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, "DELETE FROM device_data WHERE device_name=$1", name); err != nil {
		return queryFailed("failed to delete device history", err)
	}
	return nil
}

func decodeDataEntry(payload []byte, ts int64) (domain.DataEntry, error) {
	entry := domain.DataEntry{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, queryFailed("failed to decode device payload", err)
		}
	}
	entry["timestamp"] = ts
	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
