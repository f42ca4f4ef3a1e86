package datastore

import "strings"

// MySQL renditions of the external query builders. Shapes and grouping are
// shared with the Postgres builders in query.go; only quoting, placeholders
// and the epoch conversion functions differ.

// backtickIdent quotes a MySQL identifier, doubling embedded backticks.
func backtickIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (s queryShape) mysqlQualifiedTable() string {
	return backtickIdent(s.Schema) + "." + backtickIdent(s.Table)
}

func (s queryShape) backtickedValueColumns() string {
	quoted := make([]string, len(s.ValueColumns))
	for i, c := range s.ValueColumns {
		quoted[i] = backtickIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func buildMySQLSampleSQL(s queryShape) string {
	return "SELECT " + s.backtickedValueColumns() +
		", UNIX_TIMESTAMP(" + backtickIdent(s.TimestampColumn) + ")*1000 AS ts" +
		" FROM " + s.mysqlQualifiedTable() +
		" WHERE " + backtickIdent(s.IDColumn) + " = ?" +
		" ORDER BY " + backtickIdent(s.TimestampColumn) + " DESC" +
		" LIMIT 5"
}

// buildMySQLRangeSQL parameters: identifier value, from millis, to millis, limit.
func buildMySQLRangeSQL(s queryShape) string {
	return "SELECT UNIX_TIMESTAMP(" + backtickIdent(s.TimestampColumn) + ")*1000 AS ts, " +
		s.backtickedValueColumns() +
		" FROM " + s.mysqlQualifiedTable() +
		" WHERE " + backtickIdent(s.IDColumn) + " = ?" +
		" AND " + backtickIdent(s.TimestampColumn) + " BETWEEN FROM_UNIXTIME(?/1000) AND FROM_UNIXTIME(?/1000)" +
		" ORDER BY " + backtickIdent(s.TimestampColumn) + " ASC" +
		" LIMIT ?"
}

// buildMySQLLatestSQL is the batched rank-1 query. MySQL has no array
// parameters, so the IN list is expanded to nIDs placeholders. Parameters:
// lookback days, then the identifier values.
func buildMySQLLatestSQL(s queryShape, nIDs int) string {
	in := strings.TrimSuffix(strings.Repeat("?,", nIDs), ",")
	return "SELECT * FROM (" +
		"SELECT " + backtickIdent(s.IDColumn) + " AS device_id, " +
		"UNIX_TIMESTAMP(" + backtickIdent(s.TimestampColumn) + ")*1000 AS ts, " +
		s.backtickedValueColumns() + ", " +
		"ROW_NUMBER() OVER (PARTITION BY " + backtickIdent(s.IDColumn) +
		" ORDER BY " + backtickIdent(s.TimestampColumn) + " DESC) AS rn" +
		" FROM " + s.mysqlQualifiedTable() +
		" WHERE " + backtickIdent(s.TimestampColumn) + " > NOW() - INTERVAL ? DAY" +
		" AND " + backtickIdent(s.IDColumn) + " IN (" + in + ")" +
		") AS ranked WHERE rn = 1"
}
