package datastore

import (
	"strconv"
	"strings"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Identifier interpolation is confined to this file. Table/column/schema names
// reach these builders only from stored, previously-validated mapping and
// data-source rows; values are always bound as parameters.

// quoteIdent quotes a Postgres identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isReservedAlias reports whether col matches one of the output aliases the
// builders attach to their result sets. A value column with one of these
// names would be shadowed in the scanned row map, so mapping validation
// rejects them.
func isReservedAlias(col string) bool {
	switch strings.ToLower(col) {
	case "ts", "device_id", "rn":
		return true
	}
	return false
}

// queryShape is the portion of a mapping that determines the SQL text of its
// external queries. Mappings with equal shapes can share one batched query.
type queryShape struct {
	DataSourceID    int64
	Schema          string
	Table           string
	IDColumn        string
	TimestampColumn string
	ValueColumns    []string
}

func shapeOf(m *domain.Mapping, schema string) queryShape {
	if schema == "" {
		schema = "public"
	}
	return queryShape{
		DataSourceID:    m.DataSourceID,
		Schema:          schema,
		Table:           m.TableName,
		IDColumn:        m.DeviceIDColumn,
		TimestampColumn: m.TimestampColumn,
		ValueColumns:    m.ValueColumns,
	}
}

// signature keys shape-equal mappings into one group. The unit separator
// keeps column names from colliding across positions.
func (s queryShape) signature() string {
	parts := []string{
		strings.ToLower(s.Schema),
		s.Table,
		s.IDColumn,
		s.TimestampColumn,
		strings.Join(s.ValueColumns, "\x1f"),
	}
	return strconv.FormatInt(s.DataSourceID, 10) + "\x1e" + strings.Join(parts, "\x1e")
}

func (s queryShape) qualifiedTable() string {
	return quoteIdent(s.Schema) + "." + quoteIdent(s.Table)
}

func (s queryShape) quotedValueColumns() string {
	quoted := make([]string, len(s.ValueColumns))
	for i, c := range s.ValueColumns {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// buildSampleSQL is the mapping verification dry run: newest rows first,
// capped at 5, timestamps converted to epoch millis.
func buildSampleSQL(s queryShape) string {
	return "SELECT " + s.quotedValueColumns() +
		", EXTRACT(EPOCH FROM " + quoteIdent(s.TimestampColumn) + ")*1000 AS ts" +
		" FROM " + s.qualifiedTable() +
		" WHERE " + quoteIdent(s.IDColumn) + " = $1" +
		" ORDER BY " + quoteIdent(s.TimestampColumn) + " DESC" +
		" LIMIT 5"
}

// buildRangeSQL is the single-mapping window query, ascending by timestamp.
// Parameters: $1 identifier value, $2 from millis, $3 to millis, $4 limit.
func buildRangeSQL(s queryShape) string {
	return "SELECT EXTRACT(EPOCH FROM " + quoteIdent(s.TimestampColumn) + ")*1000 AS ts, " +
		s.quotedValueColumns() +
		" FROM " + s.qualifiedTable() +
		" WHERE " + quoteIdent(s.IDColumn) + " = $1" +
		" AND " + quoteIdent(s.TimestampColumn) + " BETWEEN TO_TIMESTAMP($2/1000.0) AND TO_TIMESTAMP($3/1000.0)" +
		" ORDER BY " + quoteIdent(s.TimestampColumn) + " ASC" +
		" LIMIT $4"
}

// buildLatestSQL is the batched latest-value query: partition by the device-id
// column, keep the rank-1 row per device, restricted to the lookback window.
// Parameters: $1 lookback days, $2 identifier value array.
func buildLatestSQL(s queryShape) string {
	return "WITH ranked AS (" +
		"SELECT " + quoteIdent(s.IDColumn) + " AS device_id, " +
		"EXTRACT(EPOCH FROM " + quoteIdent(s.TimestampColumn) + ")*1000 AS ts, " +
		s.quotedValueColumns() + ", " +
		"ROW_NUMBER() OVER (PARTITION BY " + quoteIdent(s.IDColumn) +
		" ORDER BY " + quoteIdent(s.TimestampColumn) + " DESC) AS rn" +
		" FROM " + s.qualifiedTable() +
		" WHERE " + quoteIdent(s.TimestampColumn) + " > NOW() - ($1::int * INTERVAL '1 day')" +
		" AND " + quoteIdent(s.IDColumn) + " = ANY($2)" +
		") SELECT * FROM ranked WHERE rn = 1"
}
