package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppiazzi/clara/internal/archive"
	"github.com/ppiazzi/clara/internal/brain"
	"github.com/ppiazzi/clara/internal/config"
	"github.com/ppiazzi/clara/internal/convo"
	"github.com/ppiazzi/clara/internal/httpapi"
	"github.com/ppiazzi/clara/internal/observability"
	"github.com/ppiazzi/clara/internal/playback"
	"github.com/ppiazzi/clara/internal/session"
	"github.com/ppiazzi/clara/internal/synth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer archiveStore.Close()

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:          cfg.BrainMode,
		HTTPURL:       cfg.BrainHTTPURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		log.Fatalf("reply adapter init failed: %v", err)
	}

	var cloud synth.Provider
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		cloud = synth.NewGeminiProvider(synth.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiTTSModel,
		})
		log.Printf("cloud tts provider: gemini (%s)", cfg.GeminiTTSModel)
	} else {
		cloud = synth.NewMockProvider()
		log.Printf("cloud tts provider: mock (GEMINI_API_KEY not set)")
	}

	var local synth.Provider
	if lp, err := synth.NewLocalProvider(synth.LocalConfig{CLI: cfg.LocalTTSCLI}); err != nil {
		log.Printf("local tts unavailable: %v", err)
	} else {
		local = lp
		log.Printf("local tts provider: %s", cfg.LocalTTSCLI)
	}

	synthClient := synth.NewClient(cloud, local)
	player := playback.NewController(cfg.AudioChunkBytes)

	sessions := session.NewStore(cfg.SessionIdleTimeout)
	sessions.SetExpireHook(func(_ string) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := convo.NewOrchestrator(
		sessions,
		adapter,
		synthClient,
		player,
		archiveStore,
		metrics,
		convo.Options{
			ReplyTimeout: cfg.BrainTimeout,
			SynthTimeout: cfg.SynthTimeout,
			DefaultVoice: cfg.DefaultVoice,
			AudioEnabled: cfg.AudioEnabledByDefault,
		},
	)

	api := httpapi.New(cfg, sessions, orchestrator, synthClient, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	orchestrator.StopAudio()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
