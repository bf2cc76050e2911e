package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Telegram TelegramConfig
	Supabase SupabaseConfig
	Discord  DiscordConfig
	Server   ServerConfig
	Store    StoreConfig
	Cache    CacheConfig
	Notify   NotifyConfig

	// Optional YAML file overriding the embedded item/weather catalog and
	// the rare-item watch list.
	CatalogFile string `envconfig:"CATALOG_FILE" default:""`

	// Stock timestamps are rendered in this timezone.
	Timezone string `envconfig:"TIMEZONE" default:"Europe/Moscow"`

	location *time.Location
}

// TelegramConfig holds the bot token and the channel/admin wiring.
type TelegramConfig struct {
	BotToken string `envconfig:"BOT_TOKEN" default:""`

	// Channel that receives public rare-item alerts. Zero disables them.
	ChannelID int64 `envconfig:"CHANNEL_ID" default:"0"`

	// Users allowed to run /broadcast and /stats.
	AdminIDs []int64 `envconfig:"ADMIN_IDS" default:""`

	// Channels (e.g. "@pvbstock") a user must be a member of before the
	// query commands answer. Empty disables the gate.
	RequiredChannels []string `envconfig:"REQUIRED_CHANNELS" default:""`

	CommandCooldown time.Duration `envconfig:"COMMAND_COOLDOWN" default:"12s"`
	MembershipTTL   time.Duration `envconfig:"MEMBERSHIP_TTL" default:"5m"`
}

// SupabaseConfig holds the stock feed backend settings.
type SupabaseConfig struct {
	URL  string `envconfig:"SUPABASE_URL" default:""`
	Key  string `envconfig:"SUPABASE_KEY" default:""`
	Game string `envconfig:"SUPABASE_GAME" default:"plantsvsbrainrots"`

	Timeout  time.Duration `envconfig:"SUPABASE_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"SUPABASE_CACHE_TTL" default:"10s"`
	Retries  int           `envconfig:"SUPABASE_RETRIES" default:"3"`
}

// DiscordConfig holds the passive restock-feed reader settings. The reader
// is enabled only when a token is present.
type DiscordConfig struct {
	Token     string `envconfig:"DISCORD_TOKEN" default:""`
	ChannelID string `envconfig:"DISCORD_CHANNEL_ID" default:""`

	// Author ID of the cooperating bot whose restock embeds we parse.
	FeedBotID string `envconfig:"DISCORD_FEED_BOT_ID" default:""`
}

// ServerConfig holds the liveness HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// StoreConfig selects the subscription store backend.
type StoreConfig struct {
	Type       string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite or supabase
	SQLitePath string `envconfig:"STORE_SQLITE_PATH" default:"./data/autostocks.db"`

	// TTL of the in-process subscription mirror.
	SubscriptionTTL time.Duration `envconfig:"SUBSCRIPTION_TTL" default:"150s"`
}

// CacheConfig selects the byte cache backend.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// NotifyConfig holds the cooldown and fan-out tuning knobs. The "right"
// values change release to release upstream, so none of them are code.
type NotifyConfig struct {
	ChannelCooldown time.Duration `envconfig:"CHANNEL_COOLDOWN" default:"300s"`
	FanoutCooldown  time.Duration `envconfig:"FANOUT_COOLDOWN" default:"180s"`
	UserCooldown    time.Duration `envconfig:"USER_COOLDOWN" default:"180s"`

	BatchSize  int           `envconfig:"NOTIFY_BATCH_SIZE" default:"25"`
	BatchPause time.Duration `envconfig:"NOTIFY_BATCH_PAUSE" default:"500ms"`

	// Per-user cooldown entries older than SweepAge are dropped by the
	// periodic sweep; the table is capped at MaxEntries.
	SweepAge   time.Duration `envconfig:"NOTIFY_SWEEP_AGE" default:"600s"`
	MaxEntries int           `envconfig:"NOTIFY_MAX_ENTRIES" default:"15000"`

	CheckInterval time.Duration `envconfig:"CHECK_INTERVAL" default:"5m"`
	CheckDelay    time.Duration `envconfig:"CHECK_DELAY" default:"15s"`
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location returns the display timezone resolved by Load.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsAdmin reports whether the given user may run admin commands.
func (t *TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables. The bot token is the
// only hard requirement; everything else has a workable default.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Telegram.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is empty, set it in the environment or .env file")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if cfg.Store.Type == "supabase" && (cfg.Supabase.URL == "" || cfg.Supabase.Key == "") {
		return nil, errors.New("STORE_TYPE=supabase requires SUPABASE_URL and SUPABASE_KEY")
	}

	return &cfg, nil
}
