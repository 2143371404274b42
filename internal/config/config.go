package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AI providers understood by the generator factory.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	RealtimeChannel string
	JWTSecret       string
	CORSOrigins     string

	AIProvider   string
	AIModel      string
	GeminiAPIKey string
	OpenAIAPIKey string

	Grading    GradingConfig
	Submission SubmissionConfig
}

// GradingConfig tunes the grading client.
type GradingConfig struct {
	Locale           string
	MaxConcurrency   int
	CacheSize        int
	SharedCacheTTL   time.Duration
	RetryBaseDelay   time.Duration
	RetryMinDelay    time.Duration
	RetryMaxDelay    time.Duration
	RetryDeadline    time.Duration
	CollapseInFlight bool
}

// SubmissionConfig tunes the submission endpoint.
type SubmissionConfig struct {
	Cooldown        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// APIKey returns the credential of the configured provider.
func (c Config) APIKey() string {
	if c.AIProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Load reads configuration values from environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA EDP API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("realtime.channel", "gema:realtime")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("grading.locale", "Thai (ภาษาไทย)")
	v.SetDefault("grading.max_concurrency", 10)
	v.SetDefault("grading.cache_size", 1000)
	v.SetDefault("grading.shared_cache_ttl", "24h")
	v.SetDefault("grading.retry_base_delay", "1s")
	v.SetDefault("grading.retry_min_delay", "500ms")
	v.SetDefault("grading.retry_max_delay", "8s")
	v.SetDefault("grading.retry_deadline", "30s")
	v.SetDefault("grading.collapse_inflight", false)
	v.SetDefault("submission.cooldown", "15s")
	v.SetDefault("submission.rate_limit_max", 20)
	v.SetDefault("submission.rate_limit_window", "1m")
}

func fromViper(v *viper.Viper) (Config, error) {
	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		NATSURL:         v.GetString("nats.url"),
		RealtimeChannel: v.GetString("realtime.channel"),
		JWTSecret:       v.GetString("jwt.secret"),
		CORSOrigins:     v.GetString("cors.origins"),
		AIProvider:      strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		AIModel:         v.GetString("ai.model"),
		GeminiAPIKey:    v.GetString("gemini_api_key"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		Grading: GradingConfig{
			Locale:           v.GetString("grading.locale"),
			MaxConcurrency:   v.GetInt("grading.max_concurrency"),
			CacheSize:        v.GetInt("grading.cache_size"),
			CollapseInFlight: v.GetBool("grading.collapse_inflight"),
		},
		Submission: SubmissionConfig{
			RateLimitMax: v.GetInt("submission.rate_limit_max"),
		},
	}

	durations["grading.shared_cache_ttl"] = &cfg.Grading.SharedCacheTTL
	durations["grading.retry_base_delay"] = &cfg.Grading.RetryBaseDelay
	durations["grading.retry_min_delay"] = &cfg.Grading.RetryMinDelay
	durations["grading.retry_max_delay"] = &cfg.Grading.RetryMaxDelay
	durations["grading.retry_deadline"] = &cfg.Grading.RetryDeadline
	durations["submission.cooldown"] = &cfg.Submission.Cooldown
	durations["submission.rate_limit_window"] = &cfg.Submission.RateLimitWindow

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = parsed
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}
	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AIProvider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("%s api key must be provided", c.AIProvider)
	}
	if c.Grading.MaxConcurrency <= 0 {
		return fmt.Errorf("grading max concurrency must be positive")
	}
	if c.Grading.CacheSize <= 0 {
		return fmt.Errorf("grading cache size must be positive")
	}
	if c.Grading.RetryMinDelay > c.Grading.RetryMaxDelay {
		return fmt.Errorf("grading retry min delay exceeds max delay")
	}
	if c.Grading.RetryDeadline <= 0 {
		return fmt.Errorf("grading retry deadline must be positive")
	}
	return nil
}
