package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gemini-qa/internal/bootstrap"
	"gemini-qa/internal/config"
	"gemini-qa/internal/credentials"
	"gemini-qa/internal/integrations/paramstore"
	"gemini-qa/internal/session"
	"gemini-qa/internal/web"
)

func main() {
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

	ctx := context.Background()

	var getter credentials.Getter
	if cfg.APIKeyParameter != "" {
		ps, err := paramstore.NewFromEnvironment(ctx)
		if err != nil {
			log.Fatalw("failed to create parameter store client", "err", err)
		}
		getter = ps
	}

	dispatcher, err := bootstrap.Dispatcher(cfg, bootstrap.Credentials(cfg, getter), log)
	if err != nil {
		log.Fatalw("failed to create dispatcher", "err", err)
	}

	ui, err := web.NewServer(dispatcher,
		web.WithLogger(log),
		web.WithSessions(session.NewStore()),
		web.WithTitle(cfg.PageTitle),
		web.WithBackgroundImage(cfg.BackgroundImageURL),
		web.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	if err != nil {
		log.Fatalw("failed to create web server", "err", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ui.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("shutdown timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("graceful shutdown error", "err", err)
		_ = srv.Close()
	}
	log.Infow("server stopped")
}
