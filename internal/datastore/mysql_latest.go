package datastore

import (
	"context"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// FetchLatestForAllMappings carries the same grouping contract as the
// Postgres engine: one rank-1 query per shape signature, failing groups
// logged and skipped. The IN list is expanded per group because MySQL has no
// array parameters.
func (m *MySQL) FetchLatestForAllMappings(ctx context.Context, lookbackDays int) (map[string]domain.LatestEntry, error) {
	if err := m.gate.Await(ctx); err != nil {
		return nil, err
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if lookbackDays > MaxLookbackDays {
		lookbackDays = MaxLookbackDays
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT "+mysqlMappingColumns+", COALESCE(ds.schema_name, '') AS ds_schema"+
			" FROM device_timeseries_mappings m JOIN data_sources ds ON m.data_source_id = ds.id"+
			" ORDER BY m.id")
	if err != nil {
		return nil, queryFailed("failed to list mappings", err)
	}
	var mappings []*mappingRow
	for rows.Next() {
		mp, err := scanMySQLMapping(rows, true)
		if err != nil {
			rows.Close()
			return nil, queryFailed("failed to scan mapping", err)
		}
		mp.schema = m.sourceSchema(mp.schema)
		mappings = append(mappings, mp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, queryFailed("failed to iterate mappings", err)
	}
	rows.Close()

	result := map[string]domain.LatestEntry{}
	if len(mappings) == 0 {
		return result, nil
	}

	for _, g := range groupMappings(mappings) {
		if err := m.fetchLatestForGroup(ctx, g, lookbackDays, result); err != nil {
			m.logger.Warn("latest-value group query failed",
				zap.String("table", g.shape.Table),
				zap.Int64("data_source_id", g.shape.DataSourceID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (m *MySQL) fetchLatestForGroup(ctx context.Context, g *mappingGroup, lookbackDays int, result map[string]domain.LatestEntry) error {
	byIdentifier := make(map[string]*mappingRow, len(g.mappings))
	args := make([]any, 0, len(g.mappings)+1)
	args = append(args, lookbackDays)
	for _, mp := range g.mappings {
		args = append(args, mp.DeviceIdentifierValue)
		if _, seen := byIdentifier[mp.DeviceIdentifierValue]; !seen {
			byIdentifier[mp.DeviceIdentifierValue] = mp
		}
	}

	rows, err := m.db.QueryContext(ctx, buildMySQLLatestSQL(g.shape, len(g.mappings)), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	ranked, err := collectRows(rows)
	if err != nil {
		return err
	}

	for _, row := range ranked {
		mp, ok := byIdentifier[stringify(row["device_id"])]
		if !ok {
			continue
		}
		values := make(map[string]any, len(g.shape.ValueColumns))
		for _, c := range g.shape.ValueColumns {
			values[c] = row[c]
		}
		entry := domain.LatestEntry{
			Timestamp: asMillis(row["ts"]),
			Values:    values,
			MappingID: mp.ID,
			RangeMin:  mp.RangeMin,
			RangeMax:  mp.RangeMax,
			ColorMin:  mp.ColorMin,
			ColorMax:  mp.ColorMax,
		}
		if mp.PrimaryValueColumn != "" {
			entry.Primary = values[mp.PrimaryValueColumn]
		}
		result[mp.DeviceName] = entry
	}
	return nil
}
