package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tricked-dev/trickster/trickster"
)

var (
	cfg        = trickster.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "trickster [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", trickster.DefaultDatabase)
	viper.SetDefault("database_type", trickster.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		trickster.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		trickster.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", trickster.DefaultLogLevel.String())

	viper.SetDefault("startup_timeout", trickster.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", trickster.DefaultShutdownTimeout)

	viper.SetDefault("brave_api_key", "")

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.join_channel", "")
	viper.SetDefault("discord.today_i_channel", "")
	viper.SetDefault("discord.rename_channels", []string{})
	viper.SetDefault("discord.shit_reddits", []string{})
	viper.SetDefault("discord.custom_status", trickster.DefaultCustomStatus)
	viper.SetDefault(
		"discord.log_level",
		trickster.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		trickster.DefaultDiscordgoLogLevel.String(),
	)

	// LLM config
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.base_url", trickster.DefaultLLMBaseURL)
	viper.SetDefault("llm.model", trickster.DefaultLLMModel)
	viper.SetDefault("llm.max_tokens", trickster.DefaultLLMMaxTokens)
	viper.SetDefault(
		"llm.max_requests_per_second",
		trickster.DefaultLLMMaxRequestsPerSecond,
	)
	viper.SetDefault("llm.log_level", trickster.DefaultLLMLogLevel.String())

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", trickster.DefaultAPIListen)
	viper.SetDefault("api.cors_allow_origins", []string{})
	viper.SetDefault("api.read_timeout", trickster.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		trickster.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", trickster.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", trickster.DefaultIdleTimeout)
	viper.SetDefault("api.log_level", trickster.DefaultAPILogLevel.String())

	envPrefix := os.Getenv(trickster.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = trickster.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"discord.rename_channels",
		viper.GetStringSlice("discord.rename_channels"),
	)
	viper.Set(
		"discord.shit_reddits",
		viper.GetStringSlice("discord.shit_reddits"),
	)
	viper.Set(
		"api.cors_allow_origins",
		viper.GetStringSlice("api.cors_allow_origins"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"llm.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
