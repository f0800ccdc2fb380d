package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables (prefixed
// with INFQ_, nested keys joined with underscores, e.g. INFQ_SERVER_PORT)
// take precedence over file values. Returns a populated Config or an error
// if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file is fine, env vars and defaults apply
	}

	v.SetEnvPrefix("INFQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// keys without defaults must be bound explicitly for AutomaticEnv to
	// surface them during Unmarshal
	_ = v.BindEnv("llm.gemini_api_key")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every settable key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("queue.bound", 3)
	v.SetDefault("queue.default_max_attempts", 3)
	v.SetDefault("queue.retry_base_delay_ms", 2000)
	v.SetDefault("queue.retry_max_delay_ms", 30000)
	v.SetDefault("queue.retry_jitter", 0.25)
	v.SetDefault("queue.seed_service_time_ms", 10000)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
}
