package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"temperature"`, quoteIdent("temperature"))
	assert.Equal(t, `"weird""name"`, quoteIdent(`weird"name`))
}

func testShape() queryShape {
	return shapeOf(&domain.Mapping{
		DataSourceID:    7,
		TableName:       "sensor_readings",
		DeviceIDColumn:  "sensor_id",
		TimestampColumn: "recorded_at",
		ValueColumns:    []string{"temperature", "humidity"},
	}, "")
}

func TestShapeOf_DefaultsSchema(t *testing.T) {
	assert.Equal(t, "public", testShape().Schema)
	assert.Equal(t, "lab", shapeOf(&domain.Mapping{}, "lab").Schema)
}

func TestSignature_GroupsEqualShapes(t *testing.T) {
	a := testShape()
	b := testShape()
	assert.Equal(t, a.signature(), b.signature())

	c := testShape()
	c.ValueColumns = []string{"humidity", "temperature"}
	assert.NotEqual(t, a.signature(), c.signature(), "column order is part of the shape")

	d := testShape()
	d.DataSourceID = 8
	assert.NotEqual(t, a.signature(), d.signature())
}

func TestBuildSampleSQL(t *testing.T) {
	sql := buildSampleSQL(testShape())
	assert.Contains(t, sql, `SELECT "temperature", "humidity"`)
	assert.Contains(t, sql, `FROM "public"."sensor_readings"`)
	assert.Contains(t, sql, `WHERE "sensor_id" = $1`)
	assert.Contains(t, sql, `ORDER BY "recorded_at" DESC`)
	assert.Contains(t, sql, "LIMIT 5")
}

func TestBuildRangeSQL(t *testing.T) {
	sql := buildRangeSQL(testShape())
	assert.Contains(t, sql, `BETWEEN TO_TIMESTAMP($2/1000.0) AND TO_TIMESTAMP($3/1000.0)`)
	assert.Contains(t, sql, `ORDER BY "recorded_at" ASC`)
	assert.Contains(t, sql, "LIMIT $4")
}

func TestBuildLatestSQL(t *testing.T) {
	sql := buildLatestSQL(testShape())
	assert.Contains(t, sql, `ROW_NUMBER() OVER (PARTITION BY "sensor_id" ORDER BY "recorded_at" DESC)`)
	assert.Contains(t, sql, `"recorded_at" > NOW() - ($1::int * INTERVAL '1 day')`)
	assert.Contains(t, sql, `"sensor_id" = ANY($2)`)
	assert.Contains(t, sql, "WHERE rn = 1")
}
