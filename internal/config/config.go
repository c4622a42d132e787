package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig configures the transport listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the optional user store. When disabled the
// server accepts guest credentials and the statically configured users.
type DatabaseConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	MaxConns int32         `mapstructure:"max_conns"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig provisions users outside the database. Static users are only
// consulted when the database is disabled.
type AuthConfig struct {
	StaticUsers []StaticUser `mapstructure:"static_users"`
}

// StaticUser describes one configured account: a bcrypt password hash for
// basic credentials, an optional token for token credentials.
type StaticUser struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Token        string `mapstructure:"token"`
}

// GameConfig configures session, matchmaking and abuse-guard behavior.
type GameConfig struct {
	CatalogPath         string        `mapstructure:"catalog_path"`
	ReconnectWindow     time.Duration `mapstructure:"reconnect_window"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	RateLimitActions    int           `mapstructure:"rate_limit_actions"`
	RateLimitWindow     time.Duration `mapstructure:"rate_limit_window"`
}

// Load reads configuration from the given file, applying defaults and
// DUEL_* environment overrides. A missing file is not an error; defaults
// and environment values are used instead.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_message_bytes", 4096)
	v.SetDefault("server.send_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.timeout", 5*time.Second)

	v.SetDefault("game.catalog_path", "")
	v.SetDefault("game.reconnect_window", 30*time.Second)
	v.SetDefault("game.maintenance_interval", 30*time.Second)
	v.SetDefault("game.rate_limit_actions", 5)
	v.SetDefault("game.rate_limit_window", time.Second)

	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Game.ReconnectWindow <= 0 {
		return fmt.Errorf("game.reconnect_window must be positive")
	}
	if c.Game.RateLimitActions <= 0 {
		return fmt.Errorf("game.rate_limit_actions must be positive")
	}
	if c.Game.RateLimitWindow <= 0 {
		return fmt.Errorf("game.rate_limit_window must be positive")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url required when database is enabled")
	}
	for i, u := range c.Auth.StaticUsers {
		if u.Username == "" {
			return fmt.Errorf("auth.static_users[%d]: username must not be empty", i)
		}
	}
	return nil
}
