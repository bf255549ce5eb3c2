// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloudpilot/internal/domain"
)

const (
	defaultOpenAIModel  = "gpt-4-1106-preview"
	defaultBedrockModel = "anthropic.claude-v2"
	defaultMaxTokens    = 2048
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	RequestTimeout time.Duration

	OpenAI  OpenAIConfig
	Bedrock BedrockConfig

	// Region is used for requests whose credentials omit one.
	Region          string
	FunctionCodeDir string
}

// OpenAIConfig configures the primary model. The API key comes from APIKey
// or, when empty, from the Parameter Store secret under ParamPrefix.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	ParamPrefix string
	Moderation  bool
}

type BedrockConfig struct {
	ModelID   string
	MaxTokens int
}

// TokenParameter is the Parameter Store name holding the OpenAI token.
func (c OpenAIConfig) TokenParameter() string {
	return strings.TrimRight(c.ParamPrefix, "/") + "/open-ai-token"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 0),
		OpenAI: OpenAIConfig{
			APIKey:      strings.TrimSpace(getEnv("OPENAI_API_KEY", "")),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", defaultOpenAIModel),
			ParamPrefix: strings.TrimSpace(getEnv("PARAM_PREFIX", "")),
			Moderation:  getEnvBool("MODERATION_ENABLED", false),
		},
		Bedrock: BedrockConfig{
			ModelID:   getEnv("AWS_BEDROCK_MODEL_ID", defaultBedrockModel),
			MaxTokens: getEnvInt("BEDROCK_MAX_TOKENS", defaultMaxTokens),
		},
		Region:          getEnv("AWS_REGION", domain.DefaultRegion),
		FunctionCodeDir: getEnv("FUNCTION_CODE_DIR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.OpenAI.APIKey == "" && c.OpenAI.ParamPrefix == "" {
		return errors.New("either OPENAI_API_KEY or PARAM_PREFIX must be set")
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		return errors.New("OPENAI_MODEL cannot be empty")
	}
	if strings.TrimSpace(c.Bedrock.ModelID) == "" {
		return errors.New("AWS_BEDROCK_MODEL_ID cannot be empty")
	}
	if c.Bedrock.MaxTokens <= 0 {
		return errors.New("BEDROCK_MAX_TOKENS must be > 0")
	}
	if c.RequestTimeout < 0 {
		return errors.New("REQUEST_TIMEOUT cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
