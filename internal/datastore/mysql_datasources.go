package datastore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// database and schema are stored as `database` and schema_name; both are
// reserved words in MySQL. Credentials are stored but never selected back out.
const mysqlDataSourceColumns = "id, name, host, port, `database`, schema_name, ssl, created_at"

func (m *MySQL) ListDataSources(ctx context.Context) ([]domain.DataSource, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, "SELECT "+mysqlDataSourceColumns+" FROM data_sources ORDER BY id")
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

func (m *MySQL) getDataSource(ctx context.Context, id int64) (*domain.DataSource, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+mysqlDataSourceColumns+" FROM data_sources WHERE id=?", id)
	ds, err := scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("data source")
	}
	if err != nil {
		return nil, queryFailed("failed to get data source", err)
	}
	return ds, nil
}

func (m *MySQL) CreateDataSource(ctx context.Context, in domain.DataSourceInput) (*domain.DataSource, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if in.Name == "" || in.Host == "" || in.Port == 0 || in.Database == "" {
		return nil, validationf("name, host, port and database are required")
	}
	res, err := m.db.ExecContext(ctx,
		"INSERT INTO data_sources(name, host, port, `database`, schema_name, username, password, ssl) VALUES(?,?,?,?,?,?,?,?)",
		in.Name, in.Host, in.Port, in.Database,
		nullString(in.Schema), nullString(in.Username), nullString(in.Password), in.SSL,
	)
	if err != nil {
		if isMySQLUniqueViolation(err) {
			return nil, conflict("data source name already exists")
		}
		return nil, queryFailed("failed to create data source", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, queryFailed("failed to resolve data source id", err)
	}
	return m.getDataSource(ctx, id)
}

func (m *MySQL) UpdateDataSource(ctx context.Context, id int64, patch domain.DataSourcePatch) (*domain.DataSource, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
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
		set("`database`", *patch.Database)
	}
	if patch.Schema != nil {
		set("schema_name", *patch.Schema)
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

	if _, err := m.db.ExecContext(ctx,
		"UPDATE data_sources SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
		return nil, queryFailed("failed to update data source", err)
	}
	return m.getDataSource(ctx, id)
}

// DeleteDataSource refuses while any mapping still references the source.
func (m *MySQL) DeleteDataSource(ctx context.Context, id int64) error {
	if err := m.gate.Await(ctx); err != nil {
		return err
	}
	var one int
	err := m.db.QueryRowContext(ctx,
		"SELECT 1 FROM device_timeseries_mappings WHERE data_source_id=? LIMIT 1", id,
	).Scan(&one)
	if err == nil {
		return inUse("data source in use by one or more mappings")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return queryFailed("failed to check data source references", err)
	}

	res, err := m.db.ExecContext(ctx, "DELETE FROM data_sources WHERE id=?", id)
	if err != nil {
		return queryFailed("failed to delete data source", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("data source")
	}
	return nil
}

// sourceSchema resolves a data source's schema, falling back to the engine's
// own database when the source does not carry one.
func (m *MySQL) sourceSchema(schema string) string {
	if schema == "" {
		return m.database
	}
	return schema
}

func (m *MySQL) ListTables(ctx context.Context, dataSourceID int64) ([]string, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	ds, err := m.getDataSource(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema=? ORDER BY table_name",
		m.sourceSchema(ds.Schema))
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

func (m *MySQL) ListColumns(ctx context.Context, dataSourceID int64, table string) ([]domain.ColumnInfo, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, validationf("table is required")
	}
	ds, err := m.getDataSource(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_schema=? AND table_name=? ORDER BY ordinal_position",
		m.sourceSchema(ds.Schema), table)
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
