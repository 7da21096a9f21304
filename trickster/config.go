//nolint:lll // struct tags can't be split
package trickster

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	EnvvarSetEnvPrefix = "TRICKSTER_ENV_PREFIX"
	DefaultEnvPrefix   = "TRICKSTER"

	DefaultDatabaseType          = "sqlite"
	DefaultDatabase              = "trickster.sqlite3"
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo

	DefaultLogLevel          = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultLLMLogLevel       = slog.LevelInfo
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultAPIListen         = "127.0.0.1:5000"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultLLMBaseURL              = "https://openrouter.ai/api/v1"
	DefaultLLMModel                = "tngtech/deepseek-r1t2-chimera:free"
	DefaultLLMMaxTokens            = 1024
	DefaultLLMMaxRequestsPerSecond = 1

	DefaultCustomStatus = "causing problems on purpose"

	discordMaxMessageLength = 2000
)

// Config is the top-level bot configuration. It is loaded once at
// startup and treated as immutable for the lifetime of the process.
type Config struct {
	// Database connection string (filename for sqlite, DSN for postgres)
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures the Discord connection and the channels the bot
	// misbehaves in
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// LLM configures the chat completion provider
	LLM *LLMConfig `yaml:"llm" mapstructure:"llm" json:"llm"`

	// API configures the read-only state API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// BraveAPIKey enables the web_search tool when set
	BraveAPIKey string `yaml:"brave_api_key" mapstructure:"brave_api_key" json:"brave_api_key" log:"[redacted]"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// connect to the gateway. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// GuildID is the single guild the bot serves. The bot leaves any
	// other guild it finds itself in.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id" binding:"required"`

	// JoinChannel is where member-join announcements are sent
	JoinChannel string `yaml:"join_channel" mapstructure:"join_channel" json:"join_channel"`

	// RenameChannels lists channel IDs eligible for the random
	// topic-rename behavior
	RenameChannels []string `yaml:"rename_channels" mapstructure:"rename_channels" json:"rename_channels"`

	// TodayIChannel, when set, is moderated so that every message must
	// start with "today i"
	TodayIChannel string `yaml:"today_i_channel" mapstructure:"today_i_channel" json:"today_i_channel"`

	// ShitReddits lists subreddits the random image reposter pulls from
	ShitReddits []string `yaml:"shit_reddits" mapstructure:"shit_reddits" json:"shit_reddits"`

	// CustomStatus is displayed as the bot's activity
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

func (c DiscordConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// LLMConfig configures the OpenAI-compatible chat completion provider.
//
//nolint:lll // can't break tags
type LLMConfig struct {
	// APIKey authenticates against BaseURL. When empty, conversational
	// replies and quiz generation are disabled.
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`

	// BaseURL is the OpenAI-compatible API root (OpenRouter by default)
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// Model is the chat completion model identifier
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// MaxTokens caps completion length for conversational replies
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens"`

	// MaxRequestsPerSecond limits outbound completion requests
	MaxRequestsPerSecond int `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c LLMConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// APIConfig configures the read-only HTTP state API.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// Enabled determines whether the API server is started at all
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// Listen address (e.g. "127.0.0.1:5000")
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// CORSAllowOrigins, when non-empty, enables CORS for the given origins
	CORSAllowOrigins []string `yaml:"cors_allow_origins" mapstructure:"cors_allow_origins" json:"cors_allow_origins"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c APIConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

func levelVar(l slog.Level) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(l)
	return v
}

// DefaultConfig returns a Config with all defaults populated.
func DefaultConfig() *Config {
	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      levelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              levelVar(DefaultLogLevel),
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			CustomStatus:      DefaultCustomStatus,
			LogLevel:          levelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: levelVar(DefaultDiscordgoLogLevel),
		},
		LLM: &LLMConfig{
			BaseURL:              DefaultLLMBaseURL,
			Model:                DefaultLLMModel,
			MaxTokens:            DefaultLLMMaxTokens,
			MaxRequestsPerSecond: DefaultLLMMaxRequestsPerSecond,
			LogLevel:             levelVar(DefaultLLMLogLevel),
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			LogLevel:          levelVar(DefaultAPILogLevel),
		},
	}
}
