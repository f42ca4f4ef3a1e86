package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig holds the primary Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN renders the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// MySQLDSN renders the go-sql-driver connection string. parseTime makes the
// driver return timestamps as time.Time instead of raw bytes.
func (c *DatabaseConfig) MySQLDSN() string {
	return c.User + ":" + c.Password +
		"@tcp(" + c.Host + ":" + strconv.Itoa(c.Port) + ")/" + c.Database +
		"?parseTime=true"
}

// RetryConfig tunes the connection resilience manager.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Config is the full abacws-api configuration, loaded from env vars
// (with optional .env file for local development).
type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	// Engine selects the datastore backend: "postgres", "mysql" or "disabled".
	Engine      string
	Database    DatabaseConfig
	MySQL       DatabaseConfig
	Retry       RetryConfig
	SeedDevices bool
	Stream      struct {
		Interval time.Duration
	}
	Mirror struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	MQTT struct {
		Enabled     bool
		Broker      string
		ClientID    string
		Username    string
		Password    string
		TopicPrefix string
	}
	Webhook struct {
		URL     string
		Timeout time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present (never overrides real env vars).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":5000")
	cfg.HTTP.ShutdownTimeout = time.Duration(parseInt(getEnv("SHUTDOWN_TIMEOUT_MS", "5000"), 5000)) * time.Millisecond

	cfg.Engine = getEnv("DB_ENGINE", "postgres")
	cfg.Database.Host = getEnv("PGHOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("PGPORT", "5432"), 5432)
	cfg.Database.User = getEnv("PGUSER", "postgres")
	cfg.Database.Password = getEnv("PGPASSWORD", "postgres")
	cfg.Database.Database = getEnv("PGDATABASE", "abacws")
	cfg.Database.SSLMode = getEnv("PGSSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("PGMAXCONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("PGMAXIDLE", "5"), 5)

	cfg.MySQL.Host = getEnv("MYSQL_HOST", "localhost")
	cfg.MySQL.Port = parseInt(getEnv("MYSQL_PORT", "3306"), 3306)
	cfg.MySQL.User = getEnv("MYSQL_USER", "root")
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", "")
	cfg.MySQL.Database = getEnv("MYSQL_DATABASE", "abacws")
	cfg.MySQL.MaxConns = parseInt(getEnv("MYSQL_MAX_CONNS", "10"), 10)
	cfg.MySQL.MaxIdle = parseInt(getEnv("MYSQL_MAX_IDLE", "5"), 5)

	cfg.Retry.MaxAttempts = parseInt(getEnv("PG_MAX_CONNECT_ATTEMPTS", "30"), 30)
	cfg.Retry.InitialDelay = time.Duration(parseInt(getEnv("PG_INITIAL_DELAY_MS", "300"), 300)) * time.Millisecond
	cfg.Retry.MaxDelay = time.Duration(parseInt(getEnv("PG_MAX_DELAY_MS", "5000"), 5000)) * time.Millisecond

	cfg.SeedDevices = getEnv("SEED_DEVICES", "true") == "true"

	cfg.Stream.Interval = time.Duration(parseInt(getEnv("STREAM_INTERVAL_MS", "8000"), 8000)) * time.Millisecond

	cfg.Mirror.Enabled = getEnv("MIRROR_ENABLED", "false") == "true"
	cfg.Mirror.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Mirror.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Mirror.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "abacws-api")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "abacws/devices")

	cfg.Webhook.URL = getEnv("RULE_WEBHOOK_URL", "")
	cfg.Webhook.Timeout = time.Duration(parseInt(getEnv("RULE_WEBHOOK_TIMEOUT_MS", "5000"), 5000)) * time.Millisecond

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
