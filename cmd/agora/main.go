package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"agora/config"
	"agora/internal/capture"
	"agora/internal/delivery"
	"agora/internal/infra/dropdir"
	"agora/internal/infra/elevenlabs"
	"agora/internal/infra/mic"
	"agora/internal/infra/natspub"
	"agora/internal/infra/openai"
	"agora/internal/infra/pushover"
	"agora/internal/infra/speaker"
	"agora/internal/infra/store"
	"agora/internal/metrics"
	"agora/internal/pipeline"
	"agora/internal/playback"
	"agora/internal/scoring"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	device := mic.NewDevice(cfg.Audio.SampleRate, logger)
	session := capture.NewSession(device, logger)

	whisperClient := openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.Language)
	scorer := scoring.NewHeuristic(rand.New(rand.NewSource(time.Now().UnixNano())))
	voiceClient := elevenlabs.NewClient(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID, cfg.ElevenLabs.ModelID)

	// Synthesized audio is always reachable through the local cache route;
	// an object store takes over publishing when configured.
	audioCache := delivery.NewAudioCache(cfg.Server.PublicURL)
	var publisher pipeline.AudioPublisher = audioCache
	if cfg.Store.Enabled {
		audioStore, err := store.New(store.Config{
			Endpoint:  cfg.Store.Endpoint,
			AccessKey: cfg.Store.AccessKey,
			SecretKey: cfg.Store.SecretKey,
			Bucket:    cfg.Store.Bucket,
			UseSSL:    cfg.Store.UseSSL,
		}, logger)
		if err != nil {
			logger.Error("connecting to object store", "error", err)
			os.Exit(1)
		}
		if err := audioStore.EnsureBucket(ctx); err != nil {
			logger.Error("preparing audio bucket", "error", err)
			os.Exit(1)
		}
		publisher = audioStore
	}

	output := speaker.NewOutput(logger)
	player := playback.NewController(&http.Client{Timeout: 60 * time.Second}, output, logger)
	player.SetGestureWait(cfg.Playback.GestureWait)

	var notifier pipeline.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = pipeline.NoopNotifier{}
	}

	orchestrator := pipeline.NewOrchestrator(
		session,
		whisperClient,
		scorer,
		voiceClient,
		publisher,
		player,
		notifier,
		logger,
	)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	orchestrator.Subscribe(m.Observer())

	if cfg.NATS.Enabled {
		events, err := natspub.New(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer events.Close()
		orchestrator.Subscribe(events.Observer())
	}

	if cfg.Audio.Source == "dropdir" {
		source := dropdir.New(cfg.Audio.DropDir, orchestrator, logger)
		go func() {
			if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("drop directory source stopped", "error", err)
			}
		}()
	}

	handlers := delivery.NewHandlers(
		scorer,
		whisperClient,
		voiceClient,
		publisher,
		audioCache,
		orchestrator,
		m,
		logger,
	)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: delivery.NewRouter(handlers, registry),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	logger.Info("starting agora council",
		"addr", cfg.Server.Addr,
		"audio_source", cfg.Audio.Source,
		"synthesis_enabled", voiceClient.Enabled(),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
