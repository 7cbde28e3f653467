package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
//
// Environment variable names are flat (PORT, MONGODB_URI, FRONTEND_URL...).
// envconfig first looks up the nested key (SERVER_PORT) and falls back to
// the tag name, so both spellings work.
type Config struct {
	Environment   string              `yaml:"environment" envconfig:"NODE_ENV" validate:"required"`
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Store         StoreConfig         `yaml:"store" envconfig:"STORE"`
	Security      SecurityConfig      `yaml:"security" envconfig:"SECURITY"`
	WebSocket     WebSocketConfig     `yaml:"websocket" envconfig:"WEBSOCKET"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Notifications NotificationsConfig `yaml:"notifications" envconfig:"NOTIFICATIONS"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP listener and lifecycle timing configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	StartupTimeout   time.Duration `yaml:"startup_timeout" envconfig:"STARTUP_TIMEOUT" validate:"gt=0"`
	DrainTimeout     time.Duration `yaml:"drain_timeout" envconfig:"DRAIN_TIMEOUT" validate:"gt=0"`
	ForceExitTimeout time.Duration `yaml:"force_exit_timeout" envconfig:"FORCE_EXIT_TIMEOUT" validate:"gt=0"`
}

// StoreConfig contains the persistent store connection settings
type StoreConfig struct {
	URI               string        `yaml:"uri" envconfig:"MONGODB_URI" validate:"required,startswith=mongodb"`
	SelectionTimeout  time.Duration `yaml:"selection_timeout" envconfig:"SELECTION_TIMEOUT" validate:"gt=0"`
	SocketIdleTimeout time.Duration `yaml:"socket_idle_timeout" envconfig:"SOCKET_IDLE_TIMEOUT" validate:"gt=0"`
	MaxPoolSize       uint64        `yaml:"max_pool_size" envconfig:"MAX_POOL_SIZE" validate:"min=1"`
	CloseTimeout      time.Duration `yaml:"close_timeout" envconfig:"STORE_CLOSE_TIMEOUT" validate:"gt=0"`
}

// SecurityConfig contains CORS and rate limiting configuration
type SecurityConfig struct {
	FrontendURL    string          `yaml:"frontend_url" envconfig:"FRONTEND_URL" validate:"required,url"`
	AllowedMethods []string        `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS" validate:"min=1"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"RATE_LIMIT_BURST" validate:"min=1"`
}

// WebSocketConfig contains realtime gateway configuration
type WebSocketConfig struct {
	Path            string        `yaml:"path" envconfig:"WS_PATH" validate:"required,startswith=/"`
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" validate:"min=1"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" validate:"min=1"`
	SendBufferSize  int           `yaml:"send_buffer_size" envconfig:"SEND_BUFFER_SIZE" validate:"min=1"`
	CloseTimeout    time.Duration `yaml:"close_timeout" envconfig:"WS_CLOSE_TIMEOUT" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"LOG_OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"LOG_FILE_PATH"`
}

// NotificationsConfig only records whether third-party SMS credentials are
// present. The core never sends notifications.
type NotificationsConfig struct {
	TwilioAccountSID string `yaml:"twilio_account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
}

// Load builds the configuration: defaults, then an optional YAML file, then
// environment variables, then validation.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	// No default tags: envconfig leaves fields untouched when the variable is unset
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct tags and cross-field constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var msgs []string
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path required for output %q", c.Logging.Output)
	}

	// The store must give up before the whole startup window closes
	if c.Store.SelectionTimeout >= c.Server.StartupTimeout {
		return fmt.Errorf("store selection timeout (%s) must be shorter than startup timeout (%s)",
			c.Store.SelectionTimeout, c.Server.StartupTimeout)
	}

	if c.Server.DrainTimeout+c.WebSocket.CloseTimeout+c.Store.CloseTimeout > c.Server.ForceExitTimeout {
		return fmt.Errorf("force exit timeout (%s) must cover drain, channel close and store close timeouts",
			c.Server.ForceExitTimeout)
	}

	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// SMSNotificationsEnabled reports whether the SMS credential is present
func (c *Config) SMSNotificationsEnabled() bool {
	return c.Notifications.TwilioAccountSID != ""
}

// AllowedOrigins returns the CORS origins for HTTP routes and the gateway
func (c *Config) AllowedOrigins() []string {
	return []string{strings.TrimRight(strings.TrimSpace(c.Security.FrontendURL), "/")}
}

// getConfigFilePath returns the path to the config file, or "" if none exists
func getConfigFilePath() string {
	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Port:             DefaultPort,
			ReadTimeout:      DefaultReadTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			IdleTimeout:      DefaultIdleTimeout,
			StartupTimeout:   DefaultStartupTimeout,
			DrainTimeout:     DefaultDrainTimeout,
			ForceExitTimeout: DefaultForceExitTimeout,
		},
		Store: StoreConfig{
			URI:               DefaultMongoURI,
			SelectionTimeout:  DefaultSelectionTimeout,
			SocketIdleTimeout: DefaultSocketIdleTimeout,
			MaxPoolSize:       DefaultMaxPoolSize,
			CloseTimeout:      DefaultStoreCloseTimeout,
		},
		Security: SecurityConfig{
			FrontendURL:    DefaultFrontendURL,
			AllowedMethods: []string{"GET", "POST"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimitRPS,
				Burst:   DefaultRateLimitBurst,
			},
		},
		WebSocket: WebSocketConfig{
			Path:            DefaultWebSocketPath,
			ReadBufferSize:  DefaultWebSocketBufferSize,
			WriteBufferSize: DefaultWebSocketBufferSize,
			SendBufferSize:  DefaultWebSocketSendBuffer,
			CloseTimeout:    DefaultChannelCloseTimeout,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			TraceExporter:  "none",
		},
	}
}
