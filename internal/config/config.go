package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// GoogleAPIKeyVar is the environment variable holding the Gemini key.
	GoogleAPIKeyVar = "GOOGLE_API_KEY"
	OpenAIAPIKeyVar = "OPENAI_API_KEY"

	defaultBackgroundImageURL = "https://www.pngmagic.com/product_images/create-black-youtube-thumbnail-background-in-photoshop_10c.jpeg"
)

type Config struct {
	Provider string `env:"GATEWAY_PROVIDER"` // gemini|openai

	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// APIKeyParameter names an SSM parameter holding the key for the selected
	// provider. Takes precedence over the environment keys when set.
	APIKeyParameter string `env:"API_KEY_PARAMETER"`

	SystemInstruction     string `env:"SYSTEM_INSTRUCTION"`
	AllowEmptyImagePrompt bool   `env:"ALLOW_EMPTY_IMAGE_PROMPT"`
	MaxUploadBytes        int64  `env:"MAX_UPLOAD_BYTES"`
	ImageMaxWidth         int    `env:"IMAGE_MAX_WIDTH"` // 0 disables downscaling
	ImageMaxPixels        int    `env:"IMAGE_MAX_PIXELS"`

	ListenAddr         string `env:"LISTEN_ADDR"`
	PageTitle          string `env:"PAGE_TITLE"`
	BackgroundImageURL string `env:"BACKGROUND_IMAGE_URL"`
	DebugMode          bool   `env:"DEBUG_MODE"`
}

// Defaults returns the configuration before .env and environment overrides.
func Defaults() *Config {
	return &Config{
		Provider:              ProviderGemini,
		GeminiModel:           "gemini-2.0-flash-exp",
		OpenAIModel:           "gpt-4o",
		AllowEmptyImagePrompt: true,
		MaxUploadBytes:        10 << 20,
		ImageMaxPixels:        89478485,
		ListenAddr:            ":8501",
		PageTitle:             "Gemini Q&A Demo",
		BackgroundImageURL:    defaultBackgroundImageURL,
	}
}

// Load reads an optional .env file, then the process environment, on top of
// Defaults. A missing API key is not an error here: it surfaces on the first
// gateway call.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderGemini:
		if strings.TrimSpace(c.GeminiModel) == "" {
			return errors.New("config: GEMINI_MODEL must not be empty")
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIModel) == "" {
			return errors.New("config: OPENAI_MODEL must not be empty")
		}
	default:
		return fmt.Errorf("config: unknown GATEWAY_PROVIDER %q (want gemini or openai)", c.Provider)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: MAX_UPLOAD_BYTES must be positive")
	}
	if c.ImageMaxWidth < 0 {
		return errors.New("config: IMAGE_MAX_WIDTH must not be negative")
	}
	if c.ImageMaxPixels <= 0 {
		return errors.New("config: IMAGE_MAX_PIXELS must be positive")
	}
	return nil
}

// Model returns the model name of the selected provider.
func (c *Config) Model() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

// APIKeyVar names the environment variable holding the selected provider's key.
func (c *Config) APIKeyVar() string {
	if c.Provider == ProviderOpenAI {
		return OpenAIAPIKeyVar
	}
	return GoogleAPIKeyVar
}

// APIKey returns the selected provider's key as loaded at startup.
func (c *Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GoogleAPIKey
}
