package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// App Settings
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	Workers   int    `envconfig:"MAX_WORKERS" default:"4"`
	ChunkSize int    `envconfig:"CHUNK_SIZE" default:"50"`
	Dedup     bool   `envconfig:"DEDUP" default:"false"`

	// Reachability
	TCPTries   int           `envconfig:"TCP_TRIES" default:"2"`
	TCPTimeout time.Duration `envconfig:"TCP_TIMEOUT" default:"3s"`
	UDPEnabled bool          `envconfig:"UDP_ENABLED" default:"true"`
	UDPTimeout time.Duration `envconfig:"UDP_TIMEOUT" default:"2s"`
	TLSCheck   bool          `envconfig:"TLS_CHECK" default:"false"`

	// Engine Verification
	VerifyEnabled bool          `envconfig:"VERIFY_ENABLED" default:"true"`
	RequireEngine bool          `envconfig:"REQUIRE_ENGINE" default:"false"`
	SingBoxPath   string        `envconfig:"SING_BOX_PATH" default:"sing-box"`
	TestURL       string        `envconfig:"TEST_URL" default:"https://www.google.com/generate_204"`
	TestTimeout   time.Duration `envconfig:"TEST_TIMEOUT" default:"12s"`
	SettleDelay   time.Duration `envconfig:"SETTLE_DELAY" default:"800ms"`
	StopTimeout   time.Duration `envconfig:"STOP_TIMEOUT" default:"2s"`
	PortStrategy  string        `envconfig:"PORT_STRATEGY" default:"counter"`
	PortMin       int           `envconfig:"PORT_MIN" default:"20000"`
	PortMax       int           `envconfig:"PORT_MAX" default:"40000"`

	// File System Paths
	InputPath       string `envconfig:"INPUT_PATH" default:"proxies.txt"`
	InputURL        string `envconfig:"INPUT_URL"`
	OutputRoot      string `envconfig:"OUTPUT_ROOT" default:"scan_results"`
	JSONLOutputPath string `envconfig:"JSONL_OUTPUT_PATH"`
	GeoIPPath       string `envconfig:"GEOIP_PATH"`

	// Notifications
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`
}

// Load reads .env and processes environment variables
func Load() (*Config, error) {
	// Silently ignore if .env is missing (production might use real ENV vars)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Workers)
	case c.ChunkSize < 1:
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	case c.TCPTries < 1:
		return fmt.Errorf("TCP_TRIES must be positive, got %d", c.TCPTries)
	case c.PortMin < 1 || c.PortMax > 65536 || c.PortMin >= c.PortMax:
		return fmt.Errorf("invalid port range [%d,%d)", c.PortMin, c.PortMax)
	case c.PortStrategy != "counter" && c.PortStrategy != "hash":
		return fmt.Errorf("PORT_STRATEGY must be counter or hash, got %q", c.PortStrategy)
	}
	return nil
}

// NotifyEnabled reports whether both Telegram settings are present.
func (c *Config) NotifyEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}
