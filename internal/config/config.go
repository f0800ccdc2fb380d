package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue"  validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// QueueConfig contains the queue engine settings.
type QueueConfig struct {
	// Bound is the maximum number of concurrently in-flight inference calls
	Bound int `mapstructure:"bound" validate:"required,gt=0"`

	// DefaultMaxAttempts is the attempt ceiling for submissions that do not
	// specify their own
	DefaultMaxAttempts int `mapstructure:"default_max_attempts" validate:"required,gt=0"`

	// RetryBaseDelayMs is the backoff delay before the first retry
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" validate:"gte=0"`

	// RetryMaxDelayMs caps the exponential backoff growth
	RetryMaxDelayMs int `mapstructure:"retry_max_delay_ms" validate:"gte=0"`

	// RetryJitter is the maximum randomized fraction added to each delay
	RetryJitter float64 `mapstructure:"retry_jitter" validate:"gte=0,lt=1"`

	// SeedServiceTimeMs seeds the wait-time estimator before any completions
	// have been observed
	SeedServiceTimeMs int `mapstructure:"seed_service_time_ms" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}
