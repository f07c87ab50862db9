package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Importer    ImporterConfig    `yaml:"importer" mapstructure:"importer"`
	Salesforce  SalesforceConfig  `yaml:"salesforce" mapstructure:"salesforce"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AttributionConfig points at the model tuning file. Decay factors and
// position shares live there, not in environment variables, so a tuning
// change is a reviewable file edit.
type AttributionConfig struct {
	ModelsPath string `yaml:"models_path" mapstructure:"models_path"`
}

// BatchConfig configures chunked batch attribution runs.
type BatchConfig struct {
	ChunkSize     int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	EmergencyStop bool    `yaml:"emergency_stop" mapstructure:"emergency_stop"`
	ConvertedOnly bool    `yaml:"converted_only" mapstructure:"converted_only"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// ImporterConfig configures journey and touchpoint ingestion.
type ImporterConfig struct {
	Concurrency int       `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int       `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FTP         FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds credentials for FTP-hosted journey exports.
type FTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
}

// SalesforceConfig holds Salesforce JWT auth settings for result sync.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// MonitoringConfig configures run alerting thresholds and delivery.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	DLQDepthThreshold  int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// ServerConfig configures the reporting API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "attribution.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("attribution.models_path", "")
	v.SetDefault("batch.chunk_size", 200)
	v.SetDefault("batch.enabled", true)
	v.SetDefault("batch.emergency_stop", false)
	v.SetDefault("importer.concurrency", 4)
	v.SetDefault("importer.timeout_secs", 60)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("monitoring.error_rate_threshold", 0.05)
	v.SetDefault("monitoring.dlq_depth_threshold", 10)
	v.SetDefault("monitoring.lookback_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
