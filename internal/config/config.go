package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"sessionbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Scheduling   SchedulingConfig   `yaml:"scheduling"`
	AutoComplete AutoCompleteConfig `yaml:"auto_complete"`
	Worker       WorkerConfig       `yaml:"worker"`
	Google       GoogleConfig       `yaml:"google"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Exports      ExportConfig       `yaml:"exports"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

// APIHTTPConfig configures the JSON API. CORSOrigins enables browser booking
// widgets hosted on those origins; wildcards like https://*.example.com are allowed.
type APIHTTPConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig configures API key checks. HeaderProvider carries the caller's
// provider id when auth is disabled.
type APIAuthConfig struct {
	Enabled        bool           `yaml:"enabled"`
	HeaderAPIKey   string         `yaml:"header_api_key"`
	HeaderExtra    string         `yaml:"header_extra"`
	HeaderProvider string         `yaml:"header_provider"`
	APIKeys        []APIClientKey `yaml:"api_keys"`
}

// APIClientKey binds a key to one provider's bookings; ProviderID 0 is an operator key.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	ProviderID  int64    `yaml:"provider_id"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SchedulingConfig struct {
	DefaultSessionMinutes int           `yaml:"default_session_minutes"`
	DefaultBreakMinutes   int           `yaml:"default_break_minutes"`
	DefaultPrice          float64       `yaml:"default_price"`
	MaxBookingDays        int           `yaml:"max_booking_days"`
	HidePastSlots         *bool         `yaml:"hide_past_slots"`
	SlotCacheTTL          time.Duration `yaml:"slot_cache_ttl"`
	BookingRateLimit      int           `yaml:"booking_rate_limit"`
	BookingRateWindow     time.Duration `yaml:"booking_rate_window"`
}

type AutoCompleteConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type WorkerConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Scheduling.DefaultSessionMinutes <= 0 {
		return errors.New("scheduling.default_session_minutes must be positive")
	}
	if c.Scheduling.DefaultBreakMinutes < 0 {
		return errors.New("scheduling.default_break_minutes must not be negative")
	}
	if c.Scheduling.DefaultPrice < 0 {
		return errors.New("scheduling.default_price must not be negative")
	}
	if c.API.GRPC.TLS.Enabled && (c.API.GRPC.TLS.CertFile == "" || c.API.GRPC.TLS.KeyFile == "") {
		return errors.New("api.grpc.tls requires cert_file and key_file")
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup.storage_path is required when backups are enabled")
	}
	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' has an empty key", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key found for '%s'", k.Name)
		}
		if k.ProviderID < 0 {
			return fmt.Errorf("api key '%s' has invalid provider_id %d", k.Name, k.ProviderID)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sessionbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.HeaderProvider == "" {
		c.API.Auth.HeaderProvider = "x-provider-id"
	}

	// Scheduling defaults
	if c.Scheduling.DefaultSessionMinutes == 0 {
		c.Scheduling.DefaultSessionMinutes = models.DefaultSessionMinutes
	}
	if c.Scheduling.MaxBookingDays == 0 {
		c.Scheduling.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Scheduling.HidePastSlots == nil {
		hide := true
		c.Scheduling.HidePastSlots = &hide
	}
	if c.Scheduling.SlotCacheTTL == 0 {
		c.Scheduling.SlotCacheTTL = models.DefaultSlotCacheTTL * time.Second
	}
	if c.Scheduling.BookingRateLimit == 0 {
		c.Scheduling.BookingRateLimit = models.DefaultBookingRateLimit
	}
	if c.Scheduling.BookingRateWindow == 0 {
		c.Scheduling.BookingRateWindow = models.DefaultBookingRateWindow * time.Second
	}

	if c.AutoComplete.Interval == 0 {
		c.AutoComplete.Interval = 15 * time.Minute
	}
	if c.AutoComplete.MinInterval == 0 {
		c.AutoComplete.MinInterval = time.Minute
	}

	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.InitialDelay == 0 {
		c.Worker.InitialDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
	if c.Worker.BackoffFactor == 0 {
		c.Worker.BackoffFactor = 2
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}

	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 2 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = time.Second
	}
}
