package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/scan-converter/internal/app"
	"github.com/petems/scan-converter/internal/audio"
	"github.com/petems/scan-converter/internal/audio/pahost"
	"github.com/petems/scan-converter/internal/config"
	"github.com/petems/scan-converter/internal/logging"
	"github.com/petems/scan-converter/internal/observe"
	"github.com/petems/scan-converter/internal/permissions"
	"github.com/petems/scan-converter/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS gates capture devices behind an explicit microphone approval
	if err := permissions.EnsureMicrophone(); err != nil {
		log.Warn().Err(err).Msg("Capture will be silent until microphone access is granted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host, err := pahost.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer host.Close()

	router := audio.NewRouter(audio.RouterConfig{
		Host:            host,
		FramesPerBlock:  cfg.Audio.FramesPerBlock,
		ChannelCapacity: cfg.Audio.ChannelCapacity,
		MeterGain:       cfg.Audio.MeterGain,
		OpenTimeout:     cfg.Audio.OpenTimeout.Std(),
		Logger:          log.With().Str("component", "router").Logger(),
	})
	catalog := audio.NewCatalog(host, cfg.Audio.PreferredHostAPI, log.With().Str("component", "catalog").Logger())

	if cfg.Metrics.Enabled {
		provider, err := observe.InitProvider(observe.ProviderConfig{ServiceVersion: Version})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize metrics")
		}
		defer provider.Shutdown(context.Background())

		metrics, err := observe.NewMetrics(provider.MeterProvider, router)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register metrics")
		}
		defer metrics.Unregister()

		go func() {
			if err := provider.Serve(ctx, cfg.Metrics.Listen, log); err != nil {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, log, Version, Commit) // App reference set below

	application := app.New(app.Config{
		Router:        router,
		Catalog:       catalog,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	go application.Monitor(ctx, time.Second)

	if err := application.Autostart(ctx); err != nil {
		log.Warn().Err(err).Msg("Autostart failed")
	}

	log.Info().Msg("Scan Converter starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := shutdown(application); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
			os.Exit(1)
		}
		host.Close()
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	onQuit := func() {
		if err := shutdown(application); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
	}
	if err := trayUI.Run(ctx, onQuit); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

// shutdown gives a stuck driver a few seconds before the process exits anyway.
func shutdown(application *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return application.Shutdown(ctx)
}
