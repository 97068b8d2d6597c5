package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"gemini-qa/handler"
	"gemini-qa/internal/bootstrap"
	"gemini-qa/internal/config"
	"gemini-qa/internal/credentials"
	"gemini-qa/internal/integrations/paramstore"
	"gemini-qa/internal/session"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := bootstrap.NewLogger(cfg.DebugMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// ---- Clients ----
	var getter credentials.Getter
	if cfg.APIKeyParameter != "" {
		ps, err := paramstore.NewFromEnvironment(ctx)
		if err != nil {
			log.Fatalw("failed to create SSM client", "err", err)
		}
		getter = ps
	}

	dispatcher, err := bootstrap.Dispatcher(cfg, bootstrap.Credentials(cfg, getter), log)
	if err != nil {
		log.Fatalw("failed to create dispatcher", "err", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(dispatcher, session.NewStore(), log)
	if err != nil {
		log.Fatalw("failed to create handler", "err", err)
	}

	lambda.Start(h.Handle)
}
