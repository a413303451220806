package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "coinserver.cfg.json"

// EngineConfig holds room engine settings.
type EngineConfig struct {
	TTL           time.Duration
	IndexTimeout  time.Duration
	SweepInterval time.Duration
	ScaleX        float64
	ScaleY        float64
	DefaultRoom   bool
}

// RedisConfig holds the redis geo index connection settings.
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// SQLiteConfig holds the sqlite geo index settings.
// An empty Path keeps the database in memory and DumpPath receives periodic snapshots.
type SQLiteConfig struct {
	Path         string
	DumpPath     string
	DumpInterval time.Duration
}

// StorageConfig selects and configures the geospatial index backend.
type StorageConfig struct {
	Type   string
	Redis  RedisConfig
	SQLite SQLiteConfig
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// MonitorConfig holds status monitor settings.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// Load reads configuration from the JSON file in configDir and sets default values.
// A missing file is reported but defaults and environment overrides stay in effect.
func Load(configDir string) error {
	// .env is optional
	_ = godotenv.Load()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("listenAddr", ":3000")
	viper.SetDefault("roomsFile", "./data/rooms.json")
	viper.SetDefault("apiKey", "")
	viper.SetDefault("transport.sendBuffer", 256)

	viper.SetDefault("engine.ttl", "1h")
	viper.SetDefault("engine.indexTimeout", "2s")
	viper.SetDefault("engine.sweepInterval", "30s")
	viper.SetDefault("engine.scaleX", 0.0001)
	viper.SetDefault("engine.scaleY", 0.0001)
	viper.SetDefault("engine.defaultRoom", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "coins")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "coinhunt")
	viper.SetDefault("influx.bucket", "coin_events")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "coinserver")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "./logs/status.json")

	viper.SetEnvPrefix("COINSERVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig returns the room engine settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TTL:           viper.GetDuration("engine.ttl"),
		IndexTimeout:  viper.GetDuration("engine.indexTimeout"),
		SweepInterval: viper.GetDuration("engine.sweepInterval"),
		ScaleX:        viper.GetFloat64("engine.scaleX"),
		ScaleY:        viper.GetFloat64("engine.scaleY"),
		DefaultRoom:   viper.GetBool("engine.defaultRoom"),
	}
}

// GetStorageConfig returns the geospatial index backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Redis: RedisConfig{
			Addr:     viper.GetString("storage.redis.addr"),
			Password: viper.GetString("storage.redis.password"),
			DB:       viper.GetInt("storage.redis.db"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
