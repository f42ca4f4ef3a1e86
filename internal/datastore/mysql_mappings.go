package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// value_columns is stored as a JSON array; MySQL has no native text arrays.
const mysqlMappingColumns = `m.id, m.device_name, m.data_source_id, m.table_name,
	m.device_id_column, m.device_identifier_value, m.timestamp_column,
	m.value_columns, m.primary_value_column, m.range_min, m.range_max,
	m.color_min, m.color_max, m.created_at`

func scanMySQLMapping(row interface{ Scan(...any) error }, withSchema bool) (*mappingRow, error) {
	var m mappingRow
	var valueColumns []byte
	var primary, colorMin, colorMax, schema sql.NullString
	var rangeMin, rangeMax sql.NullFloat64

	dest := []any{
		&m.ID, &m.DeviceName, &m.DataSourceID, &m.TableName,
		&m.DeviceIDColumn, &m.DeviceIdentifierValue, &m.TimestampColumn,
		&valueColumns, &primary, &rangeMin, &rangeMax,
		&colorMin, &colorMax, &m.CreatedAt,
	}
	if withSchema {
		dest = append(dest, &schema)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(valueColumns) > 0 {
		if err := json.Unmarshal(valueColumns, &m.ValueColumns); err != nil {
			return nil, err
		}
	}
	m.PrimaryValueColumn = primary.String
	m.ColorMin = colorMin.String
	m.ColorMax = colorMax.String
	if rangeMin.Valid {
		v := rangeMin.Float64
		m.RangeMin = &v
	}
	if rangeMax.Valid {
		v := rangeMax.Float64
		m.RangeMax = &v
	}
	m.schema = schema.String
	return &m, nil
}

func (m *MySQL) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+mysqlMappingColumns+" FROM device_timeseries_mappings m ORDER BY m.id")
	if err != nil {
		return nil, queryFailed("failed to list mappings", err)
	}
	defer rows.Close()

	mappings := []domain.Mapping{}
	for rows.Next() {
		row, err := scanMySQLMapping(rows, false)
		if err != nil {
			return nil, queryFailed("failed to scan mapping", err)
		}
		mappings = append(mappings, row.Mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate mappings", err)
	}
	return mappings, nil
}

func (m *MySQL) getMapping(ctx context.Context, id int64) (*mappingRow, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT "+mysqlMappingColumns+" FROM device_timeseries_mappings m WHERE m.id=?", id)
	mp, err := scanMySQLMapping(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("mapping")
	}
	if err != nil {
		return nil, queryFailed("failed to get mapping", err)
	}
	return mp, nil
}

func (m *MySQL) CreateMapping(ctx context.Context, in domain.MappingInput) (*domain.Mapping, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateMappingInput(in); err != nil {
		return nil, err
	}
	valueColumns, err := json.Marshal(in.ValueColumns)
	if err != nil {
		return nil, validationf("value_columns not serializable: %v", err)
	}
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO device_timeseries_mappings(
			device_name, data_source_id, table_name, device_id_column, device_identifier_value,
			timestamp_column, value_columns, primary_value_column, range_min, range_max, color_min, color_max)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.DeviceName, in.DataSourceID, in.TableName, in.DeviceIDColumn, in.DeviceIdentifierValue,
		in.TimestampColumn, valueColumns, nullString(in.PrimaryValueColumn),
		in.RangeMin, in.RangeMax, nullString(in.ColorMin), nullString(in.ColorMax),
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return nil, conflict("mapping already exists for this device and data source")
		}
		if isMySQLForeignKeyViolation(err) {
			return nil, validationf("device or data source does not exist")
		}
		return nil, queryFailed("failed to create mapping", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, queryFailed("failed to resolve mapping id", err)
	}
	mp, err := m.getMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	return &mp.Mapping, nil
}

func (m *MySQL) UpdateMapping(ctx context.Context, id int64, patch domain.MappingPatch) (*domain.Mapping, error) {
	if err := m.gate.Await(ctx); err != nil {
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
	if patch.DataSourceID != nil {
		set("data_source_id", *patch.DataSourceID)
	}
	if patch.TableName != nil {
		set("table_name", *patch.TableName)
	}
	if patch.DeviceIDColumn != nil {
		set("device_id_column", *patch.DeviceIDColumn)
	}
	if patch.DeviceIdentifierValue != nil {
		set("device_identifier_value", *patch.DeviceIdentifierValue)
	}
	if patch.TimestampColumn != nil {
		set("timestamp_column", *patch.TimestampColumn)
	}
	if patch.ValueColumns != nil {
		if err := validateValueColumns(*patch.ValueColumns); err != nil {
			return nil, err
		}
		valueColumns, err := json.Marshal(*patch.ValueColumns)
		if err != nil {
			return nil, validationf("value_columns not serializable: %v", err)
		}
		set("value_columns", valueColumns)
	}
	if patch.PrimaryValueColumn != nil {
		set("primary_value_column", *patch.PrimaryValueColumn)
	}
	if patch.RangeMin != nil {
		set("range_min", *patch.RangeMin)
	}
	if patch.RangeMax != nil {
		set("range_max", *patch.RangeMax)
	}
	if patch.ColorMin != nil {
		set("color_min", *patch.ColorMin)
	}
	if patch.ColorMax != nil {
		set("color_max", *patch.ColorMax)
	}
	if len(sets) == 0 {
		return nil, validationf("no fields to update")
	}
	args = append(args, id)

	if _, err := m.db.ExecContext(ctx,
		"UPDATE device_timeseries_mappings SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
		if isMySQLUniqueViolation(err) {
			return nil, conflict("mapping already exists for this device and data source")
		}
		return nil, queryFailed("failed to update mapping", err)
	}
	mp, err := m.getMapping(ctx, id)
	if err != nil {
		return nil, err
	}
	return &mp.Mapping, nil
}

func (m *MySQL) DeleteMapping(ctx context.Context, id int64) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, "DELETE FROM device_timeseries_mappings WHERE id=?", id)
	if err != nil {
		return queryFailed("failed to delete mapping", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("mapping")
	}
	return nil
}

// VerifyMapping dry-runs the candidate mapping with a bounded sample query,
// mirroring the Postgres contract: nothing persisted, SQL returned on failure.
func (m *MySQL) VerifyMapping(ctx context.Context, in domain.MappingInput) (*domain.VerifyResult, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateMappingInput(in); err != nil {
		return nil, err
	}
	ds, err := m.getDataSource(ctx, in.DataSourceID)
	if err != nil {
		return nil, err
	}

	shape := shapeOf(&domain.Mapping{
		DataSourceID:    in.DataSourceID,
		TableName:       in.TableName,
		DeviceIDColumn:  in.DeviceIDColumn,
		TimestampColumn: in.TimestampColumn,
		ValueColumns:    in.ValueColumns,
	}, m.sourceSchema(ds.Schema))
	query := buildMySQLSampleSQL(shape)

	rows, err := m.db.QueryContext(ctx, query, in.DeviceIdentifierValue)
	if err != nil {
		return &domain.VerifyResult{SQL: query}, queryFailed("sample query failed", err)
	}
	defer rows.Close()

	sample, err := collectRows(rows)
	if err != nil {
		return &domain.VerifyResult{SQL: query}, queryFailed("sample query failed", err)
	}
	return &domain.VerifyResult{Rows: sample, SQL: query}, nil
}

// firstMappingForDevice resolves the device's mapping; with multiple mappings
// the lowest id wins.
func (m *MySQL) firstMappingForDevice(ctx context.Context, device string) (*mappingRow, error) {
	row := m.db.QueryRowContext(ctx,
		"SELECT "+mysqlMappingColumns+", COALESCE(ds.schema_name, '') AS ds_schema"+
			" FROM device_timeseries_mappings m JOIN data_sources ds ON m.data_source_id = ds.id"+
			" WHERE m.device_name=? ORDER BY m.id LIMIT 1",
		device)
	mp, err := scanMySQLMapping(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed("failed to resolve device mapping", err)
	}
	return mp, nil
}

// FetchDeviceTimeseries returns the mapped window for one device, ascending
// by timestamp, plus the resolved mapping metadata.
func (m *MySQL) FetchDeviceTimeseries(ctx context.Context, device string, from, to int64, limit int) (*domain.Timeseries, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTimeseriesLimit
	}
	if limit > MaxTimeseriesLimit {
		limit = MaxTimeseriesLimit
	}

	mp, err := m.firstMappingForDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	if mp == nil {
		return &domain.Timeseries{Series: []map[string]any{}}, nil
	}

	query := buildMySQLRangeSQL(shapeOf(&mp.Mapping, m.sourceSchema(mp.schema)))
	rows, err := m.db.QueryContext(ctx, query, mp.DeviceIdentifierValue, from, to, limit)
	if err != nil {
		return nil, queryFailed("timeseries query failed", err)
	}
	defer rows.Close()

	series, err := collectRows(rows)
	if err != nil {
		return nil, queryFailed("timeseries query failed", err)
	}
	return &domain.Timeseries{Mapping: &mp.Mapping, Series: series}, nil
}
