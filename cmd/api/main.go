package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/config"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/handler"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/logging"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/memory"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/service/session"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to read .env file, reading from environment")
	}

	// Module presets
	presets := module.Seed()
	if cfg.Session.ModulePresetsPath != "" {
		presets, err = module.LoadPresets(cfg.Session.ModulePresetsPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Session.ModulePresetsPath).Msg("failed to load module presets")
		}
	}
	presetStore := module.NewMemoryStore(presets)

	// Memory profile store
	storePath := cfg.Store.ResolvedPath()
	store, err := storage.Open(cfg.Store.Driver, storePath)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Str("path", storePath).Msg("failed to open memory store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Str("component", "storage").Msg("failed to close memory store")
		}
	}()
	log.Info().Str("component", "storage").Str("driver", cfg.Store.Driver).Str("path", storePath).Msg("memory store opened")

	factory, err := llm.NewFactory(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize LLM transport")
	}
	if !cfg.LLM.HasCredential() {
		log.Warn().Str("provider", cfg.LLM.Provider).Msg("LLM 凭证未配置，需在会话配置中提供 apiKey")
	}

	hub := events.NewHub()

	memorySvc := memory.NewService(memory.Options{
		Store:     store,
		Emitter:   hub,
		QueueSize: cfg.Session.MemoryQueueSize,
	})
	if err := memorySvc.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load memory profile")
	}
	memorySvc.Start(ctx)
	defer memorySvc.Close()

	sessionSvc := session.NewService(session.Options{
		Factory:            factory,
		Memory:             memorySvc,
		Emitter:            hub,
		HistoryWindow:      cfg.Session.HistoryWindow,
		DefaultModel:       cfg.LLM.Model,
		DefaultTemperature: cfg.LLM.Temperature,
	})

	router := handler.NewRouter(presetStore, sessionSvc, memorySvc, hub)

	startServer(ctx, cfg.Server, router, hub.Close)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, onShutdown func()) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// event streams stay open until their subscriptions close
	srv.RegisterOnShutdown(onShutdown)

	log.Info().Str("addr", addr).Msg("Z Tavern RPG backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
