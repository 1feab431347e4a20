package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Ingest      IngestConfig     `mapstructure:"ingest"`
	Sanitize    SanitizeConfig   `mapstructure:"sanitize"`
	Indicators  IndicatorConfig  `mapstructure:"indicators"`
	Dataset     DatasetConfig    `mapstructure:"dataset"`
	Model       ModelConfig      `mapstructure:"model"`
	Prediction  PredictionConfig `mapstructure:"prediction"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type IngestConfig struct {
	Delimiter   string `mapstructure:"delimiter"`
	HeaderLines int    `mapstructure:"header_lines"`
}

type SanitizeConfig struct {
	// Policy is one of "column_mean", "zero", "drop_row".
	Policy string `mapstructure:"policy"`
}

type IndicatorConfig struct {
	MAPeriod   int `mapstructure:"ma_period"`
	RSIPeriod  int `mapstructure:"rsi_period"`
	MACDFast   int `mapstructure:"macd_fast"`
	MACDSlow   int `mapstructure:"macd_slow"`
	MACDSignal int `mapstructure:"macd_signal"`
}

type DatasetConfig struct {
	SplitRatio float64 `mapstructure:"split_ratio"`
}

type ModelConfig struct {
	HiddenLayers    []int   `mapstructure:"hidden_layers"`
	Epochs          int     `mapstructure:"epochs"`
	BatchSize       int     `mapstructure:"batch_size"`
	ValidationSplit float64 `mapstructure:"validation_split"`
	LearningRate    float64 `mapstructure:"learning_rate"`
	Seed            int64   `mapstructure:"seed"`
}

type PredictionConfig struct {
	CacheTTL string `mapstructure:"cache_ttl"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(cfg *Config) error {
	switch cfg.Sanitize.Policy {
	case "column_mean", "zero", "drop_row":
	default:
		return fmt.Errorf("invalid sanitize policy %q: must be column_mean, zero or drop_row", cfg.Sanitize.Policy)
	}

	if cfg.Dataset.SplitRatio <= 0 || cfg.Dataset.SplitRatio >= 1 {
		return fmt.Errorf("dataset split ratio must be in (0,1), got %v", cfg.Dataset.SplitRatio)
	}

	if cfg.Model.Epochs <= 0 {
		return fmt.Errorf("model epochs must be positive, got %d", cfg.Model.Epochs)
	}
	if cfg.Model.BatchSize <= 0 {
		return fmt.Errorf("model batch size must be positive, got %d", cfg.Model.BatchSize)
	}
	if cfg.Model.ValidationSplit < 0 || cfg.Model.ValidationSplit >= 1 {
		return fmt.Errorf("model validation split must be in [0,1), got %v", cfg.Model.ValidationSplit)
	}
	if len(cfg.Model.HiddenLayers) == 0 {
		return fmt.Errorf("model requires at least one hidden layer")
	}
	for _, units := range cfg.Model.HiddenLayers {
		if units <= 0 {
			return fmt.Errorf("hidden layer sizes must be positive, got %v", cfg.Model.HiddenLayers)
		}
	}

	if cfg.Indicators.MACDFast >= cfg.Indicators.MACDSlow {
		return fmt.Errorf("macd fast period (%d) must be smaller than slow period (%d)",
			cfg.Indicators.MACDFast, cfg.Indicators.MACDSlow)
	}

	if cfg.Ingest.HeaderLines < 0 {
		return fmt.Errorf("ingest header lines must be non-negative, got %d", cfg.Ingest.HeaderLines)
	}

	if cfg.Prediction.CacheTTL != "" {
		if _, err := time.ParseDuration(cfg.Prediction.CacheTTL); err != nil {
			return fmt.Errorf("invalid prediction cache TTL: %w", err)
		}
	}

	return nil
}

// PredictionCacheTTL returns the parsed cache TTL, defaulting to 60s.
func (c *Config) PredictionCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Prediction.CacheTTL)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Ingest: Binance daily exports carry a URL banner line above the
	// column header.
	viper.SetDefault("ingest.delimiter", ",")
	viper.SetDefault("ingest.header_lines", 2)

	// Sanitization
	viper.SetDefault("sanitize.policy", "column_mean")

	// Indicators
	viper.SetDefault("indicators.ma_period", 14)
	viper.SetDefault("indicators.rsi_period", 14)
	viper.SetDefault("indicators.macd_fast", 12)
	viper.SetDefault("indicators.macd_slow", 26)
	viper.SetDefault("indicators.macd_signal", 9)

	// Dataset
	viper.SetDefault("dataset.split_ratio", 0.8)

	// Model
	viper.SetDefault("model.hidden_layers", []int{16, 8})
	viper.SetDefault("model.epochs", 20)
	viper.SetDefault("model.batch_size", 16)
	viper.SetDefault("model.validation_split", 0.2)
	viper.SetDefault("model.learning_rate", 0.001)
	viper.SetDefault("model.seed", 42)

	// Prediction
	viper.SetDefault("prediction.cache_ttl", "60s")
}
