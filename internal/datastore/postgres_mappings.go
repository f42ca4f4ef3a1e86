package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

const mappingColumns = `m.id, m.device_name, m.data_source_id, m.table_name,
	m.device_id_column, m.device_identifier_value, m.timestamp_column,
	m.value_columns, m.primary_value_column, m.range_min, m.range_max,
	m.color_min, m.color_max, m.created_at`

// mappingRow is a mapping joined with its data source's schema.
type mappingRow struct {
	domain.Mapping
	schema string
}

func scanMapping(row interface{ Scan(...any) error }, withSchema bool) (*mappingRow, error) {
	var m mappingRow
	var valueColumns pq.StringArray
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

	m.ValueColumns = []string(valueColumns)
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

func (p *Postgres) ListMappings(ctx context.Context) ([]domain.Mapping, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+mappingColumns+" FROM device_timeseries_mappings m ORDER BY m.id")
	if err != nil {
		return nil, queryFailed("failed to list mappings", err)
	}
	defer rows.Close()

	mappings := []domain.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows, false)
		if err != nil {
			return nil, queryFailed("failed to scan mapping", err)
		}
		mappings = append(mappings, m.Mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate mappings", err)
	}
	return mappings, nil
}

func validateMappingInput(in domain.MappingInput) error {
	switch {
	case in.DeviceName == "":
		return validationf("device_name is required")
	case in.DataSourceID == 0:
		return validationf("data_source_id is required")
	case in.TableName == "":
		return validationf("table_name is required")
	case in.DeviceIDColumn == "":
		return validationf("device_id_column is required")
	case in.DeviceIdentifierValue == "":
		return validationf("device_identifier_value is required")
	case in.TimestampColumn == "":
		return validationf("timestamp_column is required")
	}
	return validateValueColumns(in.ValueColumns)
}

func validateValueColumns(cols []string) error {
	if len(cols) == 0 {
		return validationf("value_columns must be a non-empty list")
	}
	for _, c := range cols {
		if isReservedAlias(c) {
			return validationf("value column %q collides with a reserved result alias", c)
		}
	}
	return nil
}

func (p *Postgres) CreateMapping(ctx context.Context, in domain.MappingInput) (*domain.Mapping, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateMappingInput(in); err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO device_timeseries_mappings(
			device_name, data_source_id, table_name, device_id_column, device_identifier_value,
			timestamp_column, value_columns, primary_value_column, range_min, range_max, color_min, color_max)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING `+mappingColumns,
		in.DeviceName, in.DataSourceID, in.TableName, in.DeviceIDColumn, in.DeviceIdentifierValue,
		in.TimestampColumn, pq.Array(in.ValueColumns), nullString(in.PrimaryValueColumn),
		in.RangeMin, in.RangeMax, nullString(in.ColorMin), nullString(in.ColorMax),
	)
	m, err := scanMapping(row, false)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("mapping already exists for this device and data source")
		}
		if isForeignKeyViolation(err) {
			return nil, validationf("device or data source does not exist")
		}
		return nil, queryFailed("failed to create mapping", err)
	}
	return &m.Mapping, nil
}

func (p *Postgres) UpdateMapping(ctx context.Context, id int64, patch domain.MappingPatch) (*domain.Mapping, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	n := 1
	set := func(col string, v any) {
		sets = append(sets, col+"=$"+strconv.Itoa(n))
		args = append(args, v)
		n++
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
		set("value_columns", pq.Array(*patch.ValueColumns))
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

	query := "UPDATE device_timeseries_mappings m SET " + strings.Join(sets, ",") +
		" WHERE m.id=$" + strconv.Itoa(n) + " RETURNING " + mappingColumns
	m, err := scanMapping(p.db.QueryRowContext(ctx, query, args...), false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("mapping")
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("mapping already exists for this device and data source")
		}
		return nil, queryFailed("failed to update mapping", err)
	}
	return &m.Mapping, nil
}

func (p *Postgres) DeleteMapping(ctx context.Context, id int64) error {
	if err := p.gate.Await(ctx); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, "DELETE FROM device_timeseries_mappings WHERE id=$1", id)
	if err != nil {
		return queryFailed("failed to delete mapping", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("mapping")
	}
	return nil
}

// VerifyMapping dry-runs the candidate mapping with a bounded sample query.
// Nothing is persisted. On query failure the returned result still carries
// the SQL that was issued so operators can diagnose the candidate.
func (p *Postgres) VerifyMapping(ctx context.Context, in domain.MappingInput) (*domain.VerifyResult, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if err := validateMappingInput(in); err != nil {
		return nil, err
	}
	ds, err := p.getDataSource(ctx, in.DataSourceID)
	if err != nil {
		return nil, err
	}

	shape := shapeOf(&domain.Mapping{
		DataSourceID:    in.DataSourceID,
		TableName:       in.TableName,
		DeviceIDColumn:  in.DeviceIDColumn,
		TimestampColumn: in.TimestampColumn,
		ValueColumns:    in.ValueColumns,
	}, ds.Schema)
	query := buildSampleSQL(shape)

	rows, err := p.db.QueryContext(ctx, query, in.DeviceIdentifierValue)
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
func (p *Postgres) firstMappingForDevice(ctx context.Context, device string) (*mappingRow, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+mappingColumns+", COALESCE(ds.schema, '') AS ds_schema"+
			" FROM device_timeseries_mappings m JOIN data_sources ds ON m.data_source_id = ds.id"+
			" WHERE m.device_name=$1 ORDER BY m.id LIMIT 1",
		device)
	m, err := scanMapping(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed("failed to resolve device mapping", err)
	}
	return m, nil
}

// FetchDeviceTimeseries returns the mapped window for one device, ascending
// by timestamp, plus the resolved mapping metadata.
func (p *Postgres) FetchDeviceTimeseries(ctx context.Context, device string, from, to int64, limit int) (*domain.Timeseries, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTimeseriesLimit
	}
	if limit > MaxTimeseriesLimit {
		limit = MaxTimeseriesLimit
	}

	m, err := p.firstMappingForDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &domain.Timeseries{Series: []map[string]any{}}, nil
	}

	query := buildRangeSQL(shapeOf(&m.Mapping, m.schema))
	rows, err := p.db.QueryContext(ctx, query, m.DeviceIdentifierValue, from, to, limit)
	if err != nil {
		return nil, queryFailed("timeseries query failed", err)
	}
	defer rows.Close()

	series, err := collectRows(rows)
	if err != nil {
		return nil, queryFailed("timeseries query failed", err)
	}
	return &domain.Timeseries{Mapping: &m.Mapping, Series: series}, nil
}

// collectRows scans a result set with caller-determined columns into maps,
// normalizing driver byte slices to numbers or strings.
func collectRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		entry := make(map[string]any, len(cols))
		for i, c := range cols {
			entry[c] = normalizeValue(vals[i])
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// normalizeValue maps driver values to JSON-friendly types. lib/pq returns
// numerics as byte slices; parse them so consumers see numbers.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		s := string(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case time.Time:
		return t.UnixMilli()
	default:
		return v
	}
}
