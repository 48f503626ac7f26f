package app

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
)

// Config holds the application configuration loaded from flags,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose  bool
	Quiet    bool
	LogLevel string

	// System V credentials
	VCOM vcom.Config

	// System Y credentials
	Yuman yuman.Config

	// Correlation store DSN
	DatabaseURL string

	// Sync behavior
	DryRun    bool
	SystemKey string
	ClientID  int
	Timeout   time.Duration
}

// envKeys are the variables expected in the environment or a .env file.
var envKeys = []string{
	"VCOM_API_KEY",
	"VCOM_USERNAME",
	"VCOM_PASSWORD",
	"VCOM_BASE_URL",
	"YUMAN_TOKEN",
	"YUMAN_BASE_URL",
	"DATABASE_URL",
}

// LoadConfig loads configuration in order of precedence: flags
// (applied later by cobra), environment variables, .env files,
// defaults.
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	config := &Config{
		VCOM: vcom.Config{
			BaseURL:  viper.GetString("VCOM_BASE_URL"),
			APIKey:   viper.GetString("VCOM_API_KEY"),
			Username: viper.GetString("VCOM_USERNAME"),
			Password: viper.GetString("VCOM_PASSWORD"),
		},
		Yuman: yuman.Config{
			BaseURL: viper.GetString("YUMAN_BASE_URL"),
			Token:   viper.GetString("YUMAN_TOKEN"),
		},
		DatabaseURL: viper.GetString("DATABASE_URL"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		Timeout:     viper.GetDuration("SYNC_TIMEOUT"),
	}
	return config, nil
}

// UpdateFromFlags applies parsed flag values, which take precedence
// over environment configuration.
func (c *Config) UpdateFromFlags(verbose, quiet bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads .env files; .env.local overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
