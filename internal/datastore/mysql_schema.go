package datastore

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

var mysqlSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		name VARCHAR(191) PRIMARY KEY,
		type VARCHAR(191),
		floor INT NOT NULL,
		pos_x DOUBLE NOT NULL,
		pos_y DOUBLE NOT NULL,
		pos_z DOUBLE NOT NULL,
		pinned TINYINT(1) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS device_data (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		device_name VARCHAR(191) NOT NULL,
		timestamp BIGINT NOT NULL,
		payload JSON NOT NULL,
		INDEX idx_device_data_device_time (device_name, timestamp DESC),
		FOREIGN KEY (device_name) REFERENCES devices(name) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(191) UNIQUE NOT NULL,
		host VARCHAR(191) NOT NULL,
		port INT NOT NULL,
		` + "`database`" + ` VARCHAR(191) NOT NULL,
		schema_name VARCHAR(191),
		username VARCHAR(191),
		password VARCHAR(191),
		ssl TINYINT(1) NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS device_timeseries_mappings (
		id INT AUTO_INCREMENT PRIMARY KEY,
		device_name VARCHAR(191) NOT NULL,
		data_source_id INT NOT NULL,
		table_name VARCHAR(191) NOT NULL,
		device_id_column VARCHAR(191) NOT NULL,
		device_identifier_value VARCHAR(191) NOT NULL,
		timestamp_column VARCHAR(191) NOT NULL,
		value_columns JSON NOT NULL,
		primary_value_column VARCHAR(191),
		range_min DOUBLE,
		range_max DOUBLE,
		color_min VARCHAR(32),
		color_max VARCHAR(32),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (device_name, data_source_id),
		FOREIGN KEY (device_name) REFERENCES devices(name) ON DELETE CASCADE,
		FOREIGN KEY (data_source_id) REFERENCES data_sources(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS device_rules (
		id INT AUTO_INCREMENT PRIMARY KEY,
		device_name VARCHAR(191) NOT NULL,
		source_type ENUM('internal','external') NOT NULL,
		field VARCHAR(191) NOT NULL,
		op ENUM('>','>=','<','<=','=','!=','between','outside') NOT NULL,
		threshold_low DOUBLE NOT NULL,
		threshold_high DOUBLE NULL,
		severity VARCHAR(32) NOT NULL DEFAULT 'info',
		enabled TINYINT(1) NOT NULL DEFAULT 1,
		description TEXT NULL,
		last_triggered_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_device_rules_device (device_name),
		FOREIGN KEY (device_name) REFERENCES devices(name) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func (m *MySQL) initSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchemaStatements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if m.seed {
		m.seedDevices(ctx)
	}
	return nil
}

// seedDevices bulk-loads the static registry snapshot on first run.
// Individual insert failures are logged and skipped.
func (m *MySQL) seedDevices(ctx context.Context) {
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count); err != nil {
		m.logger.Warn("device seeding skipped", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}

	var seed seedFile
	if err := json.Unmarshal(seedDevicesJSON, &seed); err != nil {
		m.logger.Warn("device seed snapshot unreadable", zap.Error(err))
		return
	}

	seeded := 0
	for _, d := range seed.Devices {
		_, err := m.db.ExecContext(ctx,
			"INSERT IGNORE INTO devices(name, type, floor, pos_x, pos_y, pos_z, pinned) VALUES(?,?,?,?,?,?,?)",
			d.Name, nullString(d.Type), d.Floor, d.Position.X, d.Position.Y, d.Position.Z, d.Pinned,
		)
		if err != nil {
			m.logger.Warn("device seed row failed",
				zap.String("device", d.Name),
				zap.Error(err),
			)
			continue
		}
		m.mirrorDevice(d)
		seeded++
	}
	m.logger.Info("seeded device registry", zap.Int("devices", seeded))
}
