package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Credentials are stored but never selected back out.
const dataSourceColumns = "id, name, host, port, database, schema, ssl, created_at"

func scanDataSource(row interface{ Scan(...any) error }) (*domain.DataSource, error) {
	var ds domain.DataSource
	var schema sql.NullString
	var ssl sql.NullBool
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Host, &ds.Port, &ds.Database, &schema, &ssl, &ds.CreatedAt); err != nil {
		return nil, err
	}
	ds.Schema = schema.String
	ds.SSL = ssl.Bool
	return &ds, nil
}

func (p *Postgres) ListDataSources(ctx context.Context) ([]domain.DataSource, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, "SELECT "+dataSourceColumns+" FROM data_sources ORDER BY id")
	if err != nil {
		return nil, queryFailed("failed to list data sources", err)
	}
	defer rows.Close()

	sources := []domain.DataSource{}
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, queryFailed("failed to scan data source", err)
		}
		sources = append(sources, *ds)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate data sources", err)
	}
	return sources, nil
}

func (p *Postgres) CreateDataSource(ctx context.Context, in domain.DataSourceInput) (*domain.DataSource, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if in.Name == "" || in.Host == "" || in.Port == 0 || in.Database == "" {
		return nil, validationf("name, host, port and database are required")
	}
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO data_sources(name, host, port, database, schema, username, password, ssl)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+dataSourceColumns,
		in.Name, in.Host, in.Port, in.Database,
		nullString(in.Schema), nullString(in.Username), nullString(in.Password), in.SSL,
	)
	ds, err := scanDataSource(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("data source name already exists")
		}
		return nil, queryFailed("failed to create data source", err)
	}
	return ds, nil
}

func (p *Postgres) UpdateDataSource(ctx context.Context, id int64, patch domain.DataSourcePatch) (*domain.DataSource, error) {
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
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Host != nil {
		set("host", *patch.Host)
	}
	if patch.Port != nil {
		set("port", *patch.Port)
	}
	if patch.Database != nil {
		set("database", *patch.Database)
	}
	if patch.Schema != nil {
		set("schema", *patch.Schema)
	}
	if patch.Username != nil {
		set("username", *patch.Username)
	}
	if patch.Password != nil {
		set("password", *patch.Password)
	}
	if patch.SSL != nil {
		set("ssl", *patch.SSL)
	}
	if len(sets) == 0 {
		return nil, validationf("no fields to update")
	}
	args = append(args, id)

	query := "UPDATE data_sources SET " + strings.Join(sets, ",") +
		" WHERE id=$" + strconv.Itoa(n) + " RETURNING " + dataSourceColumns
	ds, err := scanDataSource(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("data source")
	}
	if err != nil {
		return nil, queryFailed("failed to update data source", err)
	}
	return ds, nil
}

// DeleteDataSource refuses while any mapping still references the source.
func (p *Postgres) DeleteDataSource(ctx context.Context, id int64) error {
	if err := p.gate.Await(ctx); err != nil {
		return err
	}
	var one int
	err := p.db.QueryRowContext(ctx,
		"SELECT 1 FROM device_timeseries_mappings WHERE data_source_id=$1 LIMIT 1", id,
	).Scan(&one)
	if err == nil {
		return inUse("data source in use by one or more mappings")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return queryFailed("failed to check data source references", err)
	}

	res, err := p.db.ExecContext(ctx, "DELETE FROM data_sources WHERE id=$1", id)
	if err != nil {
		return queryFailed("failed to delete data source", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("data source")
	}
	return nil
}

func (p *Postgres) getDataSource(ctx context.Context, id int64) (*domain.DataSource, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+dataSourceColumns+" FROM data_sources WHERE id=$1", id)
	ds, err := scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("data source")
	}
	if err != nil {
		return nil, queryFailed("failed to get data source", err)
	}
	return ds, nil
}

// ListTables introspects the data source's schema. The current implementation
// reuses the primary connection, which assumes the source lives on the same
// server; a per-source client is a possible follow-up once needed.
func (p *Postgres) ListTables(ctx context.Context, dataSourceID int64) ([]string, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	ds, err := p.getDataSource(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	schema := ds.Schema
	if schema == "" {
		schema = "public"
	}
	rows, err := p.db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema=$1 ORDER BY table_name", schema)
	if err != nil {
		return nil, queryFailed("failed to list tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, queryFailed("failed to scan table name", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate tables", err)
	}
	return tables, nil
}

func (p *Postgres) ListColumns(ctx context.Context, dataSourceID int64, table string) ([]domain.ColumnInfo, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, validationf("table is required")
	}
	ds, err := p.getDataSource(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	schema := ds.Schema
	if schema == "" {
		schema = "public"
	}
	rows, err := p.db.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema=$1 AND table_name=$2 ORDER BY ordinal_position",
		schema, table)
	if err != nil {
		return nil, queryFailed("failed to list columns", err)
	}
	defer rows.Close()

	cols := []domain.ColumnInfo{}
	for rows.Next() {
		var c domain.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, queryFailed("failed to scan column", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("failed to iterate columns", err)
	}
	return cols, nil
}
