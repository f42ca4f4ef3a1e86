package datastore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

func newTestMySQL(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate := newReadyGate()
	gate.resolve()
	return &MySQL{db: db, gate: gate, database: "abacws", logger: zap.NewNop()}, mock
}

func TestMySQLCreateDevice_InsertThenSelect(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO devices").
		WithArgs("node_1_01", "sensor", 1, 1.5, 2.0, 3.0, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM devices WHERE name").
		WithArgs("node_1_01").
		WillReturnRows(deviceRows().AddRow("node_1_01", "sensor", 1, 1.5, 2.0, 3.0, false))

	dev, err := m.CreateDevice(context.Background(), domain.Device{
		Name: "node_1_01", Type: "sensor", Floor: 1,
		Position: domain.Position{X: 1.5, Y: 2.0, Z: 3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "node_1_01", dev.Name)
	assert.Equal(t, 1.5, dev.Position.X)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCreateDevice_Duplicate(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO devices").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "duplicate entry"})

	dev, err := m.CreateDevice(context.Background(), domain.Device{Name: "node_1_01", Floor: 1})
	assert.Nil(t, dev)
	assert.Equal(t, KindConflict, KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLUpdateDevice_NotFound(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("UPDATE devices SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM devices WHERE name").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	floor := 3
	dev, err := m.UpdateDevice(context.Background(), "missing", domain.DeviceUpdate{Floor: &floor})
	assert.Nil(t, dev)
	assert.Equal(t, KindNotFound, KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertDeviceData_UnknownDevice(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO device_data").
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key constraint fails"})

	err := m.InsertDeviceData(context.Background(), "missing", domain.DataEntry{"temperature": 21.0})
	assert.Equal(t, KindNotFound, KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLLatestDeviceData_RoundTrip(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectQuery("SELECT payload, timestamp FROM device_data").
		WithArgs("node_1_01").
		WillReturnRows(sqlmock.NewRows([]string{"payload", "timestamp"}).
			AddRow([]byte(`{"temperature":{"value":21.5,"units":"°C"}}`), int64(1700000000000)))

	entry, err := m.LatestDeviceData(context.Background(), "node_1_01")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), entry["timestamp"])
	temp, ok := entry["temperature"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 21.5, temp["value"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCreateDataSource_InsertThenSelect(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO data_sources").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectQuery("SELECT .+ FROM data_sources WHERE id").
		WithArgs(int64(4)).
		WillReturnRows(dataSourceTestRows().AddRow(
			4, "lab", "db.example.org", 3306, "telemetry", "lab", true, time.Now()))

	ds, err := m.CreateDataSource(context.Background(), domain.DataSourceInput{
		Name: "lab", Host: "db.example.org", Port: 3306, Database: "telemetry", Schema: "lab", SSL: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ds.ID)
	assert.Equal(t, "lab", ds.Schema)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDeleteDataSource_InUse(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectQuery("SELECT 1 FROM device_timeseries_mappings WHERE data_source_id").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	assert.Equal(t, KindInUse, KindOf(m.DeleteDataSource(context.Background(), 4)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCreateMapping_JSONValueColumns(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO device_timeseries_mappings").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery("SELECT .+ FROM device_timeseries_mappings m WHERE m.id").
		WithArgs(int64(9)).
		WillReturnRows(mappingTestRows(false).AddRow(
			9, "node_1_01", 7, "sensor_readings",
			"sensor_id", "S-100", "recorded_at",
			[]byte(`["temperature","humidity"]`), "temperature", 10.0, 35.0,
			nil, nil, time.Now(),
		))

	mp, err := m.CreateMapping(context.Background(), validMappingInput())
	require.NoError(t, err)
	assert.Equal(t, int64(9), mp.ID)
	assert.Equal(t, []string{"temperature", "humidity"}, mp.ValueColumns)
	assert.Equal(t, "temperature", mp.PrimaryValueColumn)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCreateMapping_ReservedAliasRejected(t *testing.T) {
	m, _ := newTestMySQL(t)

	in := validMappingInput()
	in.ValueColumns = []string{"ts"}
	mp, err := m.CreateMapping(context.Background(), in)
	assert.Nil(t, mp)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestMySQLCreateRule_Defaults(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectExec("INSERT INTO device_rules").
		WithArgs("node_1_01", domain.SourceInternal, "temperature", domain.OpGT,
			30.0, nil, "info", true, nil).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectQuery("SELECT .+ FROM device_rules WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(ruleTestRows().AddRow(
			3, "node_1_01", "internal", "temperature", ">", 30.0,
			nil, "info", true, nil, nil,
			time.Now(), time.Now(),
		))

	r, err := m.CreateRule(context.Background(), validRuleInput())
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.ID)
	assert.Equal(t, "info", r.Severity)
	assert.True(t, r.Enabled)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLFetchLatest_OneQueryPerShape(t *testing.T) {
	m, mock := newTestMySQL(t)

	mock.ExpectQuery("FROM device_timeseries_mappings m JOIN data_sources ds").
		WillReturnRows(mappingTestRows(true).
			AddRow(1, "node_1_01", 7, "sensor_readings",
				"sensor_id", "S-100", "recorded_at",
				[]byte(`["temperature"]`), "temperature", nil, nil,
				nil, nil, time.Now(), "").
			AddRow(2, "node_1_02", 7, "sensor_readings",
				"sensor_id", "S-101", "recorded_at",
				[]byte(`["temperature"]`), "temperature", nil, nil,
				nil, nil, time.Now(), ""))

	mock.ExpectQuery(`SELECT \* FROM \(SELECT .+ AS rn`).
		WithArgs(14, "S-100", "S-101").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "ts", "temperature", "rn"}).
			AddRow("S-100", float64(1700000000000), []byte("21.5"), 1).
			AddRow("S-101", float64(1700000005000), []byte("19.2"), 1))

	batch, err := m.FetchLatestForAllMappings(context.Background(), 14)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1700000000000), batch["node_1_01"].Timestamp)
	assert.Equal(t, 21.5, batch["node_1_01"].Values["temperature"])
	assert.Equal(t, 21.5, batch["node_1_01"].Primary)
	assert.Equal(t, int64(2), batch["node_1_02"].MappingID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLConnectErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		number    uint16
		transient bool
	}{
		{"too many connections", 1040, true},
		{"server shutdown", 1053, true},
		{"access denied", 1045, false},
		{"unknown database", 1049, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &mysql.MySQLError{Number: tc.number, Message: tc.name}
			assert.Equal(t, tc.transient, isTransientConnectError(err))
		})
	}
}

func TestBuildMySQLSQL(t *testing.T) {
	shape := shapeOf(&domain.Mapping{
		DataSourceID:    7,
		TableName:       "sensor_readings",
		DeviceIDColumn:  "sensor_id",
		TimestampColumn: "recorded_at",
		ValueColumns:    []string{"temperature", "humidity"},
	}, "telemetry")

	sample := buildMySQLSampleSQL(shape)
	assert.Contains(t, sample, "`telemetry`.`sensor_readings`")
	assert.Contains(t, sample, "UNIX_TIMESTAMP(`recorded_at`)*1000 AS ts")
	assert.Contains(t, sample, "LIMIT 5")

	ranged := buildMySQLRangeSQL(shape)
	assert.Contains(t, ranged, "BETWEEN FROM_UNIXTIME(?/1000) AND FROM_UNIXTIME(?/1000)")
	assert.Contains(t, ranged, "ORDER BY `recorded_at` ASC")

	latest := buildMySQLLatestSQL(shape, 3)
	assert.Contains(t, latest, "IN (?,?,?)")
	assert.Contains(t, latest, "NOW() - INTERVAL ? DAY")
	assert.Contains(t, latest, "PARTITION BY `sensor_id`")
	assert.Contains(t, latest, "WHERE rn = 1")
}

func TestBacktickIdent(t *testing.T) {
	assert.Equal(t, "`plain`", backtickIdent("plain"))
	assert.Equal(t, "`we``ird`", backtickIdent("we`ird"))
}

func TestMySQLOperationsFailFastOnRejectedGate(t *testing.T) {
	gate := newReadyGate()
	gate.reject(assert.AnError)
	m := &MySQL{gate: gate, database: "abacws", logger: zap.NewNop()}

	_, err := m.ListDevices(context.Background())
	assert.Equal(t, KindUnavailable, KindOf(err))
	_, err = m.FetchLatestForAllMappings(context.Background(), 7)
	assert.Equal(t, KindUnavailable, KindOf(err))
}
