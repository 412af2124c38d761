package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// FileName is the config file looked up in the config directory.
	FileName = "tenchi_map.cfg.json"
	// EnvPrefix prefixes environment overrides, e.g. TENCHI_API_SERVERURL.
	EnvPrefix = "TENCHI"
)

// APIConfig holds the storage API connection settings
type APIConfig struct {
	ServerURL    string        `json:"serverUrl" mapstructure:"serverUrl" validate:"required,url"`
	SessionToken string        `json:"sessionToken" mapstructure:"sessionToken"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

// ViewerConfig is the fallback device position used when no location
// provider is available
type ViewerConfig struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" mapstructure:"longitude" validate:"gte=-180,lte=180"`
	Known     bool    `json:"known" mapstructure:"known"`
}

// MapConfig holds map view and surface settings
type MapConfig struct {
	CenterLatitude  float64 `json:"centerLatitude" mapstructure:"centerLatitude" validate:"gte=-90,lte=90"`
	CenterLongitude float64 `json:"centerLongitude" mapstructure:"centerLongitude" validate:"gte=-180,lte=180"`
	Zoom            int     `json:"zoom" mapstructure:"zoom" validate:"gte=0,lte=19"`
	GeoJSONPath     string  `json:"geojsonPath" mapstructure:"geojsonPath"`
	RelayURL        string  `json:"relayUrl" mapstructure:"relayUrl" validate:"omitempty,url"`
	RelaySecret     string  `json:"relaySecret" mapstructure:"relaySecret"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the history backend
type StorageConfig struct {
	Type          string         `json:"type" mapstructure:"type" validate:"oneof=none memory sqlite postgres"`
	FlushInterval time.Duration  `json:"flushInterval" mapstructure:"flushInterval" validate:"gt=0"`
	Memory        MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres      PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol" validate:"oneof=http https"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// WatchConfig holds the periodic refresh settings
type WatchConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval" validate:"gte=1s"`
}

// Settings is the typed view of the loaded configuration
type Settings struct {
	LogLevel string        `json:"logLevel" mapstructure:"logLevel" validate:"oneof=debug info warn error"`
	LogsDir  string        `json:"logsDir" mapstructure:"logsDir"`
	API      APIConfig     `json:"api" mapstructure:"api"`
	Viewer   ViewerConfig  `json:"viewer" mapstructure:"viewer"`
	Map      MapConfig     `json:"map" mapstructure:"map"`
	Storage  StorageConfig `json:"storage" mapstructure:"storage"`
	Influx   InfluxConfig  `json:"influx" mapstructure:"influx"`
	Graylog  GraylogConfig `json:"graylog" mapstructure:"graylog"`
	OTel     OTelConfig    `json:"otel" mapstructure:"otel"`
	Watch    WatchConfig   `json:"watch" mapstructure:"watch"`
}

// Load reads configuration from the JSON file in configDir and sets default
// values. A missing file is not an error; defaults and TENCHI_* environment
// variables still apply.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./tenchilogs")

	viper.SetDefault("api.serverUrl", "http://localhost:8080")
	viper.SetDefault("api.sessionToken", "")
	viper.SetDefault("api.timeout", "30s")

	viper.SetDefault("viewer.latitude", 0.0)
	viper.SetDefault("viewer.longitude", 0.0)
	viper.SetDefault("viewer.known", false)

	viper.SetDefault("map.centerLatitude", 35.681236)
	viper.SetDefault("map.centerLongitude", 139.767125)
	viper.SetDefault("map.zoom", 13)
	viper.SetDefault("map.geojsonPath", "")
	viper.SetDefault("map.relayUrl", "")
	viper.SetDefault("map.relaySecret", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "5s")
	viper.SetDefault("storage.memory.outputDir", "./history")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./history/tenchi_map.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "tenchi")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "tenchi")
	viper.SetDefault("influx.backupPath", "./history/influx_backup.lp.gz")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tenchi-map")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", false)

	viper.SetDefault("watch.interval", "1m")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Get decodes the loaded configuration and validates it.
func Get() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
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
