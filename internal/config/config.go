package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	defaultLLMProvider       = "openai"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultAnthropicModel    = "claude-sonnet-4-5-20250929"
	defaultLLMTemperature    = 0.1
	defaultLLMMaxTokens      = 2000
	defaultLLMMaxRetries     = 3
	defaultLLMRetryBackoffMS = 500
	defaultLLMRequestsPerMin = 60
	defaultReverifySchedule  = "*/15 * * * *"
)

// scheduleParser accepts standard five-field cron expressions.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type Config struct {
	LLMProvider          string   `yaml:"llm_provider"`
	LLMModel             string   `yaml:"llm_model"`
	LLMBaseURL           string   `yaml:"llm_base_url"`
	LLMTemperature       *float64 `yaml:"llm_temperature"`
	LLMMaxTokens         int      `yaml:"llm_max_tokens"`
	LLMMaxRetries        int      `yaml:"llm_max_retries"`
	LLMRetryBackoffMS    *int     `yaml:"llm_retry_backoff_ms"`
	LLMRequestsPerMinute int      `yaml:"llm_requests_per_minute"`
	OpenAIAPIKey         string   `yaml:"openai_api_key"`
	AnthropicAPIKey      string   `yaml:"anthropic_api_key"`

	DBPath                     string `yaml:"db_path"`
	HTTPAddr                   string `yaml:"http_addr"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	SlackBotToken       string `yaml:"slack_bot_token"`
	SlackAlertChannelID string `yaml:"slack_alert_channel_id"`

	// Empty disables the sweep.
	ReverifySchedule *string `yaml:"reverify_schedule"`
	Timezone         string  `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig reads CONFIG_PATH (default config.yaml; a missing file is fine),
// applies environment overrides, fills defaults and validates. A missing LLM
// API key is not an error: extraction is then disabled.
func LoadConfig() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAlertChannelID, "SLACK_ALERT_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if val, ok := os.LookupEnv("REVERIFY_SCHEDULE"); ok {
		cfg.ReverifySchedule = &val
	}
	if err := errors.Join(
		envOverrideFloatPtr(&cfg.LLMTemperature, "LLM_TEMPERATURE"),
		envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"),
		envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES"),
		envOverrideIntPtr(&cfg.LLMRetryBackoffMS, "LLM_RETRY_BACKOFF_MS"),
		envOverrideInt(&cfg.LLMRequestsPerMinute, "LLM_REQUESTS_PER_MINUTE"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
	); err != nil {
		return Config{}, err
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = defaultLLMProvider
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = defaultOpenAIModel
		if cfg.LLMProvider == "anthropic" {
			cfg.LLMModel = defaultAnthropicModel
		}
	}
	if cfg.LLMTemperature == nil {
		t := defaultLLMTemperature
		cfg.LLMTemperature = &t
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = defaultLLMMaxTokens
	}
	if cfg.LLMMaxRetries == 0 {
		cfg.LLMMaxRetries = defaultLLMMaxRetries
	}
	if cfg.LLMRetryBackoffMS == nil {
		b := defaultLLMRetryBackoffMS
		cfg.LLMRetryBackoffMS = &b
	}
	if cfg.LLMRequestsPerMinute == 0 {
		cfg.LLMRequestsPerMinute = defaultLLMRequestsPerMin
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./docverify.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ReverifySchedule == nil {
		s := defaultReverifySchedule
		cfg.ReverifySchedule = &s
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	switch cfg.LLMProvider {
	case "openai", "anthropic":
	default:
		return Config{}, fmt.Errorf("llm_provider must be 'openai' or 'anthropic', got '%s'", cfg.LLMProvider)
	}
	if *cfg.LLMTemperature < 0 || *cfg.LLMTemperature > 2 {
		return Config{}, fmt.Errorf("invalid llm_temperature '%g': must be between 0 and 2", *cfg.LLMTemperature)
	}
	if cfg.LLMMaxTokens < 1 {
		return Config{}, fmt.Errorf("invalid llm_max_tokens '%d': must be >= 1", cfg.LLMMaxTokens)
	}
	if cfg.LLMMaxRetries < 1 {
		return Config{}, fmt.Errorf("invalid llm_max_retries '%d': must be >= 1", cfg.LLMMaxRetries)
	}
	if *cfg.LLMRetryBackoffMS < 0 {
		return Config{}, fmt.Errorf("invalid llm_retry_backoff_ms '%d': must be >= 0", *cfg.LLMRetryBackoffMS)
	}
	if cfg.LLMRequestsPerMinute < 0 {
		return Config{}, fmt.Errorf("invalid llm_requests_per_minute '%d': must be >= 0", cfg.LLMRequestsPerMinute)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return Config{}, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("log_format must be 'json' or 'console', got '%s'", cfg.LogFormat)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if s := strings.TrimSpace(*cfg.ReverifySchedule); s != "" {
		if _, err := scheduleParser.Parse(s); err != nil {
			return Config{}, fmt.Errorf("invalid reverify_schedule '%s': %w", s, err)
		}
	}

	return cfg, nil
}

// APIKey returns the credential for the selected provider.
func (c Config) APIKey() string {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func (c Config) LLMEnabled() bool {
	return c.APIKey() != ""
}

func (c Config) RetryBackoff() time.Duration {
	if c.LLMRetryBackoffMS == nil {
		return 0
	}
	return time.Duration(*c.LLMRetryBackoffMS) * time.Millisecond
}

func (c Config) Temperature() float64 {
	if c.LLMTemperature == nil {
		return defaultLLMTemperature
	}
	return *c.LLMTemperature
}

func (c Config) Schedule() string {
	if c.ReverifySchedule == nil {
		return ""
	}
	return strings.TrimSpace(*c.ReverifySchedule)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAlertChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideIntPtr(field **int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}

func envOverrideFloatPtr(field **float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}
