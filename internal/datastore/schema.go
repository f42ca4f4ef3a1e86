package datastore

import (
	"context"
	_ "embed"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

//go:embed devices.json
var seedDevicesJSON []byte

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		name text PRIMARY KEY,
		type text,
		floor int NOT NULL,
		pos_x numeric NOT NULL,
		pos_y numeric NOT NULL,
		pos_z numeric NOT NULL,
		pinned boolean NOT NULL DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS device_data (
		id bigserial PRIMARY KEY,
		device_name text NOT NULL REFERENCES devices(name) ON DELETE CASCADE,
		timestamp bigint NOT NULL,
		payload jsonb NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_data_device_time ON device_data(device_name, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id serial PRIMARY KEY,
		name text UNIQUE NOT NULL,
		host text NOT NULL,
		port int NOT NULL,
		database text NOT NULL,
		schema text,
		username text,
		password text,
		ssl boolean DEFAULT false,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS device_timeseries_mappings (
		id serial PRIMARY KEY,
		device_name text NOT NULL REFERENCES devices(name) ON DELETE CASCADE,
		data_source_id int NOT NULL REFERENCES data_sources(id) ON DELETE CASCADE,
		table_name text NOT NULL,
		device_id_column text NOT NULL,
		device_identifier_value text NOT NULL,
		timestamp_column text NOT NULL,
		value_columns text[] NOT NULL,
		primary_value_column text,
		range_min numeric,
		range_max numeric,
		color_min text,
		color_max text,
		created_at timestamptz NOT NULL DEFAULT now(),
		UNIQUE(device_name, data_source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS device_rules (
		id serial PRIMARY KEY,
		device_name text NOT NULL REFERENCES devices(name) ON DELETE CASCADE,
		source_type text NOT NULL CHECK (source_type IN ('internal','external')),
		field text NOT NULL,
		op text NOT NULL CHECK (op IN ('>','>=','<','<=','=','!=','between','outside')),
		threshold_low numeric NOT NULL,
		threshold_high numeric,
		severity text NOT NULL DEFAULT 'info',
		enabled boolean NOT NULL DEFAULT true,
		description text,
		last_triggered_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_device_rules_device ON device_rules(device_name)`,
}

// initSchema idempotently creates all tables and indexes, then seeds the
// device registry on first run (empty devices table, seeding enabled).
func (p *Postgres) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if p.seed {
		p.seedDevices(ctx)
	}
	return nil
}

type seedFile struct {
	Devices []domain.Device `json:"devices"`
}

// seedDevices bulk-loads the static registry snapshot. Individual insert
// failures are logged and skipped so one bad seed row cannot block startup.
func (p *Postgres) seedDevices(ctx context.Context) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		p.logger.Warn("device seeding skipped", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}

	var seed seedFile
	if err := json.Unmarshal(seedDevicesJSON, &seed); err != nil {
		p.logger.Warn("device seed snapshot unreadable", zap.Error(err))
		return
	}

	seeded := 0
	for _, d := range seed.Devices {
		_, err := p.db.ExecContext(ctx,
			"INSERT INTO devices(name, type, floor, pos_x, pos_y, pos_z, pinned) VALUES($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (name) DO NOTHING",
			d.Name, nullString(d.Type), d.Floor, d.Position.X, d.Position.Y, d.Position.Z, d.Pinned,
		)
		if err != nil {
			p.logger.Warn("device seed row failed",
				zap.String("device", d.Name),
				zap.Error(err),
			)
			continue
		}
		p.mirrorDevice(d)
		seeded++
	}
	p.logger.Info("seeded device registry", zap.Int("devices", seeded))
}
