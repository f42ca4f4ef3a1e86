package domain

import "time"

// DataSource describes an external relational database that mapped
// timeseries are read from. Credentials are accepted on write but never
// serialized back to callers.
type DataSource struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Database  string    `json:"database"`
	Schema    string    `json:"schema,omitempty"`
	SSL       bool      `json:"ssl"`
	CreatedAt time.Time `json:"created_at"`
}

// DataSourceInput is the create payload for a data source.
type DataSourceInput struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSL      bool   `json:"ssl"`
}

// DataSourcePatch carries a partial data source update.
type DataSourcePatch struct {
	Name     *string `json:"name"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Database *string `json:"database"`
	Schema   *string `json:"schema"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	SSL      *bool   `json:"ssl"`
}

// ColumnInfo is one column returned by data source introspection.
type ColumnInfo struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
}
