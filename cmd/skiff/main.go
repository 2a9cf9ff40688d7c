package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jhalstead/skiff/internal/gate"
	"github.com/jhalstead/skiff/internal/history"
	"github.com/jhalstead/skiff/internal/storage"
	"github.com/jhalstead/skiff/internal/upload"
	"github.com/jhalstead/skiff/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()

	setupLogging(cfg.Logging)

	log.Info().Msg("starting skiff upload server")

	// An unusable upload root means no upload can ever succeed, so
	// this is the one failure that kills the process.
	st, err := storage.New(cfg.Storage.RootDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload root")
	}

	ledger, err := history.Open(cfg.History.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to open transfer ledger, continuing without history")
		ledger = nil
	} else {
		defer ledger.Close()
	}

	tokenSecret := cfg.Gate.TokenSecret
	if tokenSecret == "" {
		tokenSecret = randomTokenSecret()
		log.Info().Msg("generated ephemeral token secret; credentials will not survive a restart")
	}

	g := gate.New(cfg.Gate.Secret, cfg.Gate.MinDigits, cfg.Gate.MaxDigits, tokenSecret, cfg.Gate.TokenTTL)

	sm := upload.NewSessionManager(st, upload.SizePolicy{MaxBytes: cfg.Upload.MaxBytes()}, ledgerRecorder(ledger))
	sm.StartReaper(cfg.Upload.SweepInterval, cfg.Upload.SessionTTL)
	defer sm.Close()

	router := setupRouter(cfg, g, sm, st, ledger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func randomTokenSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("failed to generate token secret")
	}
	return hex.EncodeToString(b)
}
