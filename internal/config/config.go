package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Platforms
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config содержит все настройки приложения
type Config struct {
	Bot      BotConfig
	Discord  DiscordConfig
	Telegram TelegramConfig
	Database DatabaseConfig
	Trading  TradingConfig
	Session  SessionConfig
	HTTP     HTTPConfig
}

type BotConfig struct {
	Platform  string `envconfig:"BOT_PLATFORM" default:"discord"`
	Language  string `envconfig:"BOT_LANGUAGE" default:"es"`
	Footer    string `envconfig:"BOT_FOOTER" default:"BDX Traders"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

type DiscordConfig struct {
	Token            string   `envconfig:"DISCORD_TOKEN"`
	ClientID         string   `envconfig:"CLIENT_ID"`
	GuildID          string   `envconfig:"GUILD_ID"`
	TradingChannelID string   `envconfig:"TRADING_CHANNEL_ID"`
	AdminIDs         []string `envconfig:"ADMIN_IDS"`
	RegisterCommands bool     `envconfig:"DISCORD_REGISTER_COMMANDS" default:"false"`
}

type TelegramConfig struct {
	BotToken     string `envconfig:"TELEGRAM_BOT_TOKEN"`
	PublicChatID int64  `envconfig:"TELEGRAM_PUBLIC_CHAT_ID"`
	Admins       string `envconfig:"TG_ADMINS"`
	Whitelist    string `envconfig:"TG_CHAT_WHITELIST"`
	RateLimit    int    `envconfig:"TG_RATE_LIMIT" default:"2"`
}

type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"sqlite"`
	Path            string        `envconfig:"DATABASE_PATH" default:"./data/trading_bot.db"`
	URL             string        `envconfig:"DATABASE_URL"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"postgres"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Name            string        `envconfig:"DB_NAME" default:"trading_bot"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	LogSQL          bool          `envconfig:"DB_LOG_SQL" default:"false"`
}

type TradingConfig struct {
	SupportedAssets []string `envconfig:"SUPPORTED_ASSETS" default:"US30,MNQ,MGC"`
	AssetsFile      string   `envconfig:"ASSETS_FILE"`
}

type SessionConfig struct {
	LockTimeout       time.Duration `envconfig:"SESSION_LOCK_TIMEOUT" default:"5m"`
	InteractionMaxAge time.Duration `envconfig:"INTERACTION_MAX_AGE" default:"10m"`
	PurgeConfirmTTL   time.Duration `envconfig:"PURGE_CONFIRM_TTL" default:"60s"`
}

type HTTPConfig struct {
	Enabled     bool   `envconfig:"HTTP_ENABLED" default:"true"`
	Port        int    `envconfig:"PORT" default:"3000"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"trading-bot-discord"`
}

// Load загружает конфигурацию из .env файла и переменных окружения
func Load() (*Config, error) {
	// Загружаем .env файл (если есть)
	_ = godotenv.Load()

	cfg := &Config{}
	sections := []struct {
		name   string
		target interface{}
	}{
		{"bot", &cfg.Bot},
		{"discord", &cfg.Discord},
		{"telegram", &cfg.Telegram},
		{"database", &cfg.Database},
		{"trading", &cfg.Trading},
		{"session", &cfg.Session},
		{"http", &cfg.HTTP},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.Bot.Platform = strings.ToLower(strings.TrimSpace(c.Bot.Platform))
	c.Bot.Language = strings.ToLower(strings.TrimSpace(c.Bot.Language))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))

	assets := make([]string, 0, len(c.Trading.SupportedAssets))
	for _, a := range c.Trading.SupportedAssets {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			assets = append(assets, a)
		}
	}
	c.Trading.SupportedAssets = assets

	admins := make([]string, 0, len(c.Discord.AdminIDs))
	for _, id := range c.Discord.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins = append(admins, id)
		}
	}
	c.Discord.AdminIDs = admins
}

// Validate проверяет общие поля конфигурации
func (c *Config) Validate() error {
	switch c.Bot.Platform {
	case PlatformDiscord, PlatformTelegram:
	default:
		return fmt.Errorf("BOT_PLATFORM must be %q or %q, got %q", PlatformDiscord, PlatformTelegram, c.Bot.Platform)
	}
	switch c.Bot.Language {
	case "es", "en":
	default:
		return fmt.Errorf("BOT_LANGUAGE must be es or en, got %q", c.Bot.Language)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" && c.Database.Password == "" {
			return fmt.Errorf("DATABASE_URL or DB_PASSWORD is required for postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if len(c.Trading.SupportedAssets) == 0 {
		return fmt.Errorf("SUPPORTED_ASSETS must list at least one asset")
	}
	if c.Session.LockTimeout <= 0 {
		return fmt.Errorf("SESSION_LOCK_TIMEOUT must be positive")
	}
	if c.Session.InteractionMaxAge <= 0 {
		return fmt.Errorf("INTERACTION_MAX_AGE must be positive")
	}
	return nil
}

// ValidateBot проверяет токены выбранной платформы
func (c *Config) ValidateBot() error {
	switch c.Bot.Platform {
	case PlatformDiscord:
		if c.Discord.Token == "" {
			return fmt.Errorf("DISCORD_TOKEN is required")
		}
		if c.Discord.RegisterCommands && c.Discord.ClientID == "" {
			return fmt.Errorf("CLIENT_ID is required to register commands")
		}
	case PlatformTelegram:
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
		}
	}
	return nil
}

// PostgresDSN строка подключения к PostgreSQL
func (d DatabaseConfig) PostgresDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
