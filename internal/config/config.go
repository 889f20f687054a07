// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Games     GamesConfig     `mapstructure:"games"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// GamesConfig holds wagering configuration shared by all games plus
// per-game rake percentages. Amounts are decimal strings so limits stay
// exact fixed-point values.
type GamesConfig struct {
	MinBet             string  `mapstructure:"min_bet"`
	MaxBet             string  `mapstructure:"max_bet"`
	JoinTimeoutMinutes int     `mapstructure:"join_timeout_minutes"`
	MaxOpenMatches     int     `mapstructure:"max_open_matches"`
	CoinFlip           RakeCfg `mapstructure:"coin_flip"`
	Domino             RakeCfg `mapstructure:"domino"`
}

// RakeCfg holds the house cut for one game type.
type RakeCfg struct {
	RakePercent float64 `mapstructure:"rake_percent"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// MinBetAmount parses the configured minimum wager.
func (g *GamesConfig) MinBetAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(g.MinBet)
}

// MaxBetAmount parses the configured maximum wager.
func (g *GamesConfig) MaxBetAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(g.MaxBet)
}

// JoinTimeout returns how long a waiting match stays joinable.
func (g *GamesConfig) JoinTimeout() time.Duration {
	return time.Duration(g.JoinTimeoutMinutes) * time.Minute
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, GAMES_MAX_BET.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is fine, env vars can provide everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := cfg.Games.MinBetAmount(); err != nil {
		return nil, fmt.Errorf("invalid games.min_bet %q: %w", cfg.Games.MinBet, err)
	}
	if _, err := cfg.Games.MaxBetAmount(); err != nil {
		return nil, fmt.Errorf("invalid games.max_bet %q: %w", cfg.Games.MaxBet, err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wagerbot")
	v.SetDefault("database.name", "wagerbot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Wagering defaults
	v.SetDefault("games.min_bet", "5.00")
	v.SetDefault("games.max_bet", "1000.00")
	v.SetDefault("games.join_timeout_minutes", 15)
	v.SetDefault("games.max_open_matches", 5)
	v.SetDefault("games.coin_flip.rake_percent", 5.0)
	v.SetDefault("games.domino.rake_percent", 5.0)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
