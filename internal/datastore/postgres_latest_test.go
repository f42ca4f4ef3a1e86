package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

func testMappingRow(id int64, device, identifier string) *mappingRow {
	return &mappingRow{
		Mapping: domain.Mapping{
			ID:                    id,
			DeviceName:            device,
			DataSourceID:          7,
			TableName:             "sensor_readings",
			DeviceIDColumn:        "sensor_id",
			DeviceIdentifierValue: identifier,
			TimestampColumn:       "recorded_at",
			ValueColumns:          []string{"temperature"},
			PrimaryValueColumn:    "temperature",
		},
		schema: "lab",
	}
}

func TestGroupMappings_SharedShape(t *testing.T) {
	a := testMappingRow(1, "node_1_01", "S-100")
	b := testMappingRow(2, "node_1_02", "S-101")
	c := testMappingRow(3, "node_2_01", "S-200")
	c.TableName = "weather"

	groups := groupMappings([]*mappingRow{a, b, c})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].mappings, 2)
	assert.Len(t, groups[1].mappings, 1)
	assert.Equal(t, "sensor_readings", groups[0].shape.Table)
	assert.Equal(t, "weather", groups[1].shape.Table)
}

// Two devices mapped onto the same table and columns must be served by a
// single ranked query.
func TestFetchLatestForAllMappings_OneQueryPerShape(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("FROM device_timeseries_mappings m JOIN data_sources ds").
		WillReturnRows(mappingTestRows(true).
			AddRow(1, "node_1_01", 7, "sensor_readings", "sensor_id", "S-100", "recorded_at",
				"{temperature}", "temperature", 10.0, 35.0, nil, nil, time.Now(), "lab").
			AddRow(2, "node_1_02", 7, "sensor_readings", "sensor_id", "S-101", "recorded_at",
				"{temperature}", "temperature", nil, nil, nil, nil, time.Now(), "lab"))

	mock.ExpectQuery("WITH ranked AS").
		WithArgs(7, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "ts", "temperature", "rn"}).
			AddRow("S-100", float64(1700000000000), []byte("21.5"), int64(1)).
			AddRow("S-101", float64(1700000001000), []byte("31.0"), int64(1)))

	batch, err := p.FetchLatestForAllMappings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	first := batch["node_1_01"]
	assert.Equal(t, int64(1700000000000), first.Timestamp)
	assert.Equal(t, 21.5, first.Values["temperature"])
	assert.Equal(t, 21.5, first.Primary)
	assert.Equal(t, int64(1), first.MappingID)
	require.NotNil(t, first.RangeMin)
	assert.Equal(t, 10.0, *first.RangeMin)

	second := batch["node_1_02"]
	assert.Equal(t, 31.0, second.Primary)
	assert.Equal(t, int64(2), second.MappingID)
	assert.Nil(t, second.RangeMin)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchLatestForAllMappings_NoMappings(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("FROM device_timeseries_mappings m JOIN data_sources ds").
		WillReturnRows(mappingTestRows(true))

	batch, err := p.FetchLatestForAllMappings(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, batch)

	require.NoError(t, mock.ExpectationsWereMet())
}

// A failing group must not take down the whole batch.
func TestFetchLatestForAllMappings_SkipsFailingGroup(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("FROM device_timeseries_mappings m JOIN data_sources ds").
		WillReturnRows(mappingTestRows(true).
			AddRow(1, "node_1_01", 7, "broken_table", "sensor_id", "S-100", "recorded_at",
				"{temperature}", nil, nil, nil, nil, nil, time.Now(), "lab").
			AddRow(2, "node_1_02", 7, "sensor_readings", "sensor_id", "S-101", "recorded_at",
				"{temperature}", nil, nil, nil, nil, nil, time.Now(), "lab"))

	mock.ExpectQuery("WITH ranked AS").
		WillReturnError(errors.New(`relation "lab.broken_table" does not exist`))
	mock.ExpectQuery("WITH ranked AS").
		WithArgs(7, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "ts", "temperature", "rn"}).
			AddRow("S-101", float64(1700000002000), []byte("19.0"), int64(1)))

	batch, err := p.FetchLatestForAllMappings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Contains(t, batch, "node_1_02")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchLatestForAllMappings_ClampsLookback(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery("FROM device_timeseries_mappings m JOIN data_sources ds").
		WillReturnRows(mappingTestRows(true).
			AddRow(1, "node_1_01", 7, "sensor_readings", "sensor_id", "S-100", "recorded_at",
				"{temperature}", nil, nil, nil, nil, nil, time.Now(), "lab"))
	mock.ExpectQuery("WITH ranked AS").
		WithArgs(MaxLookbackDays, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "ts", "temperature", "rn"}))

	_, err := p.FetchLatestForAllMappings(context.Background(), 500)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "S-100", stringify("S-100"))
	assert.Equal(t, "42", stringify(float64(42)))
	assert.Equal(t, "42", stringify(int64(42)))
}
