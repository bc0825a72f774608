// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DIGIT_SERVICE_DEVICE_PORT
const EnvPrefix = "DIGIT_SERVICE"

// maxChunkSize is one full sample
const maxChunkSize = 784

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Device   DeviceConfig   `mapstructure:"device"`
	History  HistoryConfig  `mapstructure:"history"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig represents database configuration. With Enabled false the
// classification history is kept in memory.
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// HistoryConfig bounds the stored classifications. A zero retention keeps
// records forever; capacity applies to the in-memory store only.
type HistoryConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents the inference device link and its protocol timing
type DeviceConfig struct {
	Port            string        `mapstructure:"port"`
	BaudRate        int           `mapstructure:"baud_rate"`
	AutoConnect     bool          `mapstructure:"auto_connect"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	BannerWindow    time.Duration `mapstructure:"banner_window"`
	StartDelay      time.Duration `mapstructure:"start_delay"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	ChunkDelay      time.Duration `mapstructure:"chunk_delay"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	HistorySize     int           `mapstructure:"history_size"`
	CanvasSize      int           `mapstructure:"canvas_size"`
	StrokeWidth     float64       `mapstructure:"stroke_width"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from an optional config file, a .env file and
// environment variables. An empty path searches the default locations.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/digit-service")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_upload_size", 8<<20)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "digit_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", true)

	// History defaults
	v.SetDefault("history.capacity", 1000)
	v.SetDefault("history.retention", "720h")
	v.SetDefault("history.cleanup_interval", "1h")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults match the firmware's expectations
	v.SetDefault("device.port", "")
	v.SetDefault("device.baud_rate", 115200)
	v.SetDefault("device.auto_connect", false)
	v.SetDefault("device.read_timeout", "5s")
	v.SetDefault("device.write_timeout", "5s")
	v.SetDefault("device.settle_delay", "2s")
	v.SetDefault("device.banner_window", "2s")
	v.SetDefault("device.start_delay", "50ms")
	v.SetDefault("device.chunk_size", 64)
	v.SetDefault("device.chunk_delay", "5ms")
	v.SetDefault("device.response_timeout", "10s")
	v.SetDefault("device.history_size", 5)
	v.SetDefault("device.canvas_size", 320)
	v.SetDefault("device.stroke_width", 24.0)

	// App defaults
	v.SetDefault("app.name", "digit-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}
	if config.Server.TLS.Enabled && (config.Server.TLS.CertFile == "" || config.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires cert_file and key_file")
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if config.Database.DBName == "" {
			return fmt.Errorf("database.dbname is required")
		}
	}

	if err := validateDevice(&config.Device); err != nil {
		return err
	}

	if config.History.Capacity < 0 {
		return fmt.Errorf("history.capacity must not be negative")
	}
	if config.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}
	if config.History.Retention > 0 && config.History.CleanupInterval <= 0 {
		return fmt.Errorf("history.cleanup_interval must be positive when history.retention is set")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validFormats := []string{"json", "console"}
	if !contains(validFormats, config.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	return nil
}

func validateDevice(device *DeviceConfig) error {
	if device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be positive")
	}
	if device.AutoConnect && device.Port == "" {
		return fmt.Errorf("device.port is required when device.auto_connect is set")
	}
	if device.ChunkSize < 1 || device.ChunkSize > maxChunkSize {
		return fmt.Errorf("device.chunk_size must be between 1 and %d", maxChunkSize)
	}
	if device.ResponseTimeout <= 0 {
		return fmt.Errorf("device.response_timeout must be positive")
	}
	if device.HistorySize <= 0 {
		return fmt.Errorf("device.history_size must be positive")
	}

	durations := map[string]time.Duration{
		"read_timeout":  device.ReadTimeout,
		"write_timeout": device.WriteTimeout,
		"settle_delay":  device.SettleDelay,
		"banner_window": device.BannerWindow,
		"start_delay":   device.StartDelay,
		"chunk_delay":   device.ChunkDelay,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("device.%s must not be negative", name)
		}
	}

	if device.CanvasSize <= 0 {
		return fmt.Errorf("device.canvas_size must be positive")
	}
	if device.StrokeWidth <= 0 {
		return fmt.Errorf("device.stroke_width must be positive")
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
