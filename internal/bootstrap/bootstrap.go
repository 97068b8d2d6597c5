// Package bootstrap assembles the dependency graph shared by the binaries.
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"gemini-qa/internal/config"
	"gemini-qa/internal/credentials"
	"gemini-qa/internal/imaging"
	"gemini-qa/internal/integrations/gemini"
	"gemini-qa/internal/integrations/openai"
	"gemini-qa/internal/usecase"
)

// NewLogger returns a development logger in debug mode and a production one
// otherwise.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create logger: %w", err)
	}
	return l.Sugar(), nil
}

// Credentials picks the API key source for cfg. A parameter store entry wins
// when both a name and a getter are available. A key already loaded into cfg
// is used as is; otherwise the provider's environment variable is read on
// every use so a key set after startup is picked up.
func Credentials(cfg *config.Config, getter credentials.Getter) credentials.Source {
	if cfg.APIKeyParameter != "" && getter != nil {
		return credentials.Cached(credentials.Parameter(getter, cfg.APIKeyParameter))
	}
	if key := cfg.APIKey(); key != "" {
		return credentials.Static(key)
	}
	return credentials.Env(cfg.APIKeyVar())
}

// Gateway builds the model gateway selected by cfg.Provider.
func Gateway(cfg *config.Config, creds credentials.Source) (usecase.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(creds,
			openai.WithModel(cfg.OpenAIModel),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithSystemInstruction(cfg.SystemInstruction),
		)
	case config.ProviderGemini:
		return gemini.NewGateway(creds,
			gemini.WithModel(cfg.GeminiModel),
			gemini.WithBaseURL(cfg.GeminiBaseURL),
			gemini.WithSystemInstruction(cfg.SystemInstruction),
		)
	default:
		return nil, fmt.Errorf("bootstrap: unknown provider %q", cfg.Provider)
	}
}

// Dispatcher wires the gateway and image decoder into a usecase.Dispatcher.
func Dispatcher(cfg *config.Config, creds credentials.Source, log *zap.SugaredLogger) (*usecase.Dispatcher, error) {
	gw, err := Gateway(cfg, creds)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey() == "" && cfg.APIKeyParameter == "" {
		log.Warnw("API key is not set; model requests will fail until it is provided",
			"provider", cfg.Provider, "env", cfg.APIKeyVar())
	}
	log.Infow("model gateway ready", "provider", cfg.Provider, "model", cfg.Model())

	dec := imaging.NewDecoder(
		imaging.WithMaxWidth(cfg.ImageMaxWidth),
		imaging.WithMaxPixels(cfg.ImageMaxPixels),
	)
	return usecase.NewDispatcher(gw, dec, cfg.AllowEmptyImagePrompt)
}
