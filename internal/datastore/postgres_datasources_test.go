package datastore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

func dataSourceTestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "host", "port", "database", "schema", "ssl", "created_at"})
}

func TestCreateDataSource_Validation(t *testing.T) {
	p, _ := newTestPostgres(t)

	ds, err := p.CreateDataSource(context.Background(), domain.DataSourceInput{Name: "lab"})
	assert.Nil(t, ds)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateDataSource_Success(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("INSERT INTO data_sources").
		WillReturnRows(dataSourceTestRows().AddRow(
			1, "lab", "db.example.org", 5432, "telemetry", "lab", true, time.Now()))

	ds, err := p.CreateDataSource(context.Background(), domain.DataSourceInput{
		Name:     "lab",
		Host:     "db.example.org",
		Port:     5432,
		Database: "telemetry",
		Schema:   "lab",
		Username: "reader",
		Password: "secret",
		SSL:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ds.ID)
	assert.Equal(t, "lab", ds.Schema)
	assert.True(t, ds.SSL)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDataSource_DuplicateName(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("INSERT INTO data_sources").
		WillReturnError(&pq.Error{Code: "23505"})

	ds, err := p.CreateDataSource(context.Background(), domain.DataSourceInput{
		Name: "lab", Host: "h", Port: 5432, Database: "d",
	})
	assert.Nil(t, ds)
	assert.Equal(t, KindConflict, KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDataSource_InUse(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT 1 FROM device_timeseries_mappings").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	err := p.DeleteDataSource(context.Background(), 7)
	assert.Equal(t, KindInUse, KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDataSource_Success(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT 1 FROM device_timeseries_mappings").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("DELETE FROM data_sources").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.DeleteDataSource(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDataSource_NotFound(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT 1 FROM device_timeseries_mappings").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("DELETE FROM data_sources").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.Equal(t, KindNotFound, KindOf(p.DeleteDataSource(context.Background(), 7)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables_DefaultsSchema(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT .+ FROM data_sources WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(dataSourceTestRows().AddRow(
			7, "lab", "db.example.org", 5432, "telemetry", nil, false, time.Now()))
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("sensor_readings").
			AddRow("weather"))

	tables, err := p.ListTables(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"sensor_readings", "weather"}, tables)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListColumns(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("SELECT .+ FROM data_sources WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(dataSourceTestRows().AddRow(
			7, "lab", "db.example.org", 5432, "telemetry", "lab", false, time.Now()))
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("lab", "sensor_readings").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("sensor_id", "text").
			AddRow("temperature", "numeric"))

	cols, err := p.ListColumns(context.Background(), 7, "sensor_readings")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "sensor_id", cols[0].Name)
	assert.Equal(t, "numeric", cols[1].DataType)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListColumns_RequiresTable(t *testing.T) {
	p, _ := newTestPostgres(t)

	cols, err := p.ListColumns(context.Background(), 7, "")
	assert.Nil(t, cols)
	assert.Equal(t, KindValidation, KindOf(err))
}
