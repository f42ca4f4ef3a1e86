package datastore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// mappingGroup collects mappings that share one query shape and can therefore
// be served by a single ranked query.
type mappingGroup struct {
	shape    queryShape
	mappings []*mappingRow
}

func groupMappings(mappings []*mappingRow) []*mappingGroup {
	var order []string
	bySig := map[string]*mappingGroup{}
	for _, m := range mappings {
		shape := shapeOf(&m.Mapping, m.schema)
		sig := shape.signature()
		g, ok := bySig[sig]
		if !ok {
			g = &mappingGroup{shape: shape}
			bySig[sig] = g
			order = append(order, sig)
		}
		g.mappings = append(g.mappings, m)
	}
	groups := make([]*mappingGroup, len(order))
	for i, sig := range order {
		groups[i] = bySig[sig]
	}
	return groups
}

// FetchLatestForAllMappings is the batched latest-value fetch: one ranked
// query per distinct (data source, table, id column, timestamp column, value
// columns) signature, restricted to the lookback window. A failing group is
// logged and skipped so one bad table cannot starve the others.
func (p *Postgres) FetchLatestForAllMappings(ctx context.Context, lookbackDays int) (map[string]domain.LatestEntry, error) {
	if err := p.gate.Await(ctx); err != nil {
		return nil, err
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if lookbackDays > MaxLookbackDays {
		lookbackDays = MaxLookbackDays
	}

	rows, err := p.db.QueryContext(ctx,
		"SELECT "+mappingColumns+", COALESCE(ds.schema, '') AS ds_schema"+
			" FROM device_timeseries_mappings m JOIN data_sources ds ON m.data_source_id = ds.id"+
			" ORDER BY m.id")
	if err != nil {
		return nil, queryFailed("failed to list mappings", err)
	}
	var mappings []*mappingRow
	for rows.Next() {
		m, err := scanMapping(rows, true)
		if err != nil {
			rows.Close()
			return nil, queryFailed("failed to scan mapping", err)
		}
		mappings = append(mappings, m)
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
		if err := p.fetchLatestForGroup(ctx, g, lookbackDays, result); err != nil {
			p.logger.Warn("latest-value group query failed",
				zap.String("table", g.shape.Table),
				zap.Int64("data_source_id", g.shape.DataSourceID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (p *Postgres) fetchLatestForGroup(ctx context.Context, g *mappingGroup, lookbackDays int, result map[string]domain.LatestEntry) error {
	byIdentifier := make(map[string]*mappingRow, len(g.mappings))
	ids := make([]string, 0, len(g.mappings))
	for _, m := range g.mappings {
		ids = append(ids, m.DeviceIdentifierValue)
		if _, seen := byIdentifier[m.DeviceIdentifierValue]; !seen {
			byIdentifier[m.DeviceIdentifierValue] = m
		}
	}

	rows, err := p.db.QueryContext(ctx, buildLatestSQL(g.shape), lookbackDays, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	ranked, err := collectRows(rows)
	if err != nil {
		return err
	}

	for _, row := range ranked {
		m, ok := byIdentifier[stringify(row["device_id"])]
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
			MappingID: m.ID,
			RangeMin:  m.RangeMin,
			RangeMax:  m.RangeMax,
			ColorMin:  m.ColorMin,
			ColorMax:  m.ColorMax,
		}
		if m.PrimaryValueColumn != "" {
			entry.Primary = values[m.PrimaryValueColumn]
		}
		result[m.DeviceName] = entry
	}
	return nil
}

// stringify folds the ranked row's device_id back to the textual identifier
// stored on the mapping, tolerating numeric id columns.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func asMillis(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}
