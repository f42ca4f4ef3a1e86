package domain

import "time"

// Mapping binds a device to a row-stream in an external table: rows where
// DeviceIDColumn equals DeviceIdentifierValue, timestamped by TimestampColumn,
// carrying the listed value columns. At most one mapping may exist per
// (device, data source) pair.
type Mapping struct {
	ID                    int64     `json:"id"`
	DeviceName            string    `json:"device_name"`
	DataSourceID          int64     `json:"data_source_id"`
	TableName             string    `json:"table_name"`
	DeviceIDColumn        string    `json:"device_id_column"`
	DeviceIdentifierValue string    `json:"device_identifier_value"`
	TimestampColumn       string    `json:"timestamp_column"`
	ValueColumns          []string  `json:"value_columns"`
	PrimaryValueColumn    string    `json:"primary_value_column,omitempty"`
	RangeMin              *float64  `json:"range_min"`
	RangeMax              *float64  `json:"range_max"`
	ColorMin              string    `json:"color_min,omitempty"`
	ColorMax              string    `json:"color_max,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// MappingInput is the create payload for a mapping.
type MappingInput struct {
	DeviceName            string   `json:"device_name"`
	DataSourceID          int64    `json:"data_source_id"`
	TableName             string   `json:"table_name"`
	DeviceIDColumn        string   `json:"device_id_column"`
	DeviceIdentifierValue string   `json:"device_identifier_value"`
	TimestampColumn       string   `json:"timestamp_column"`
	ValueColumns          []string `json:"value_columns"`
	PrimaryValueColumn    string   `json:"primary_value_column"`
	RangeMin              *float64 `json:"range_min"`
	RangeMax              *float64 `json:"range_max"`
	ColorMin              string   `json:"color_min"`
	ColorMax              string   `json:"color_max"`
}

// MappingPatch carries a partial mapping update.
type MappingPatch struct {
	DeviceName            *string   `json:"device_name"`
	DataSourceID          *int64    `json:"data_source_id"`
	TableName             *string   `json:"table_name"`
	DeviceIDColumn        *string   `json:"device_id_column"`
	DeviceIdentifierValue *string   `json:"device_identifier_value"`
	TimestampColumn       *string   `json:"timestamp_column"`
	ValueColumns          *[]string `json:"value_columns"`
	PrimaryValueColumn    *string   `json:"primary_value_column"`
	RangeMin              *float64  `json:"range_min"`
	RangeMax              *float64  `json:"range_max"`
	ColorMin              *string   `json:"color_min"`
	ColorMax              *string   `json:"color_max"`
}

// VerifyResult is the outcome of a successful mapping dry run: the sampled
// rows and the exact SQL that was issued, for operator diagnosis.
type VerifyResult struct {
	Rows []map[string]any `json:"rows"`
	SQL  string           `json:"sql"`
}

// Timeseries is the windowed fetch result for one device mapping.
type Timeseries struct {
	Mapping *Mapping         `json:"mapping,omitempty"`
	Series  []map[string]any `json:"series"`
}

// LatestEntry is one device's most recent externally-mapped row, as produced
// by the batched latest-value fetch.
type LatestEntry struct {
	Timestamp int64          `json:"timestamp"`
	Values    map[string]any `json:"values"`
	Primary   any            `json:"primary,omitempty"`
	MappingID int64          `json:"mappingId"`
	RangeMin  *float64       `json:"range_min"`
	RangeMax  *float64       `json:"range_max"`
	ColorMin  string         `json:"color_min,omitempty"`
	ColorMax  string         `json:"color_max,omitempty"`
}
