package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"videodubber/internal/config"
	"videodubber/internal/gpu"
	"videodubber/internal/logger"
	"videodubber/internal/media"
	"videodubber/internal/performance"
	"videodubber/internal/pipeline"
	"videodubber/internal/server"
	"videodubber/internal/synth"
	"videodubber/internal/transcriber"
	"videodubber/internal/tts"
)

const shutdownTimeout = 15 * time.Second

// ServiceHealth tracks process-level state reported in the health file
type ServiceHealth struct {
	mu              sync.RWMutex
	startedAt       time.Time
	serverListening bool
	lastServeError  string
}

// Application wires configuration, collaborators, the orchestrator and the HTTP server
type Application struct {
	config       *config.Configuration
	zapLogger    *zap.Logger
	monitor      *performance.CallMonitor
	capacity     *pipeline.Capacity
	orchestrator *pipeline.Orchestrator
	server       *server.Server
	gpuInfo      gpu.Info
	health       *ServiceHealth
}

// NewApplication loads configuration from CONFIG_PATH when set, otherwise from
// the environment, and builds the application
func NewApplication() (*Application, error) {
	var cfg *config.Configuration
	var err error

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	zapLogger, err := logger.NewLoggerForMode(cfg.GetDebugMode())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewApplicationWithConfig(cfg, zapLogger)
}

// NewApplicationWithConfig builds every component from an existing configuration
func NewApplicationWithConfig(cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	if zapLogger == nil {
		zapLogger = logger.NewLogger()
	}

	client := newOpenAIClient(cfg)

	recognizer, gpuInfo, err := newRecognizer(cfg, zapLogger, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	translator, err := newTranslator(cfg, zapLogger, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create translator: %w", err)
	}
	engine, lister, err := newVoiceEngine(cfg, zapLogger, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice engine: %w", err)
	}

	ffmpeg := media.NewFFmpeg(zapLogger, cfg.GetFFmpegPath(), cfg.GetFFprobePath())
	monitor := performance.NewCallMonitor(zapLogger)
	capacity := pipeline.NewCapacity(cfg.GetSharedCapacity())

	synthesizer := synth.NewSynthesizer(zapLogger, engine, ffmpeg, synth.Options{
		TempDir:        filepath.Join(cfg.GetTempDir(), "segments"),
		SampleRate:     cfg.GetSampleRate(),
		MinSpeech:      cfg.GetMinSpeechDuration(),
		EngineTimeout:  cfg.GetSynthesizeTimeout(),
		StretchTimeout: cfg.GetStretchTimeout(),
		Limiter:        capacity,
		Monitor:        monitor,
	})

	orchestrator := pipeline.NewOrchestrator(
		zapLogger,
		ffmpeg,
		recognizer,
		translator,
		synthesizer,
		tts.NewVoiceTable(cfg.GetFallbackVoice()),
		transcriber.NewJSONOutput(cfg.GetOutputDir(), zapLogger),
		pipeline.Options{
			TempDir:            cfg.GetTempDir(),
			OutputDir:          cfg.GetOutputDir(),
			MaxDuration:        cfg.GetMaxDuration(),
			SegmentConcurrency: cfg.GetSegmentConcurrency(),
			SampleRate:         cfg.GetSampleRate(),
			GapThreshold:       cfg.GetGapThreshold(),
			ProbeTimeout:       cfg.GetProbeTimeout(),
			ExtractTimeout:     cfg.GetExtractTimeout(),
			TranscribeTimeout:  cfg.GetTranscribeTimeout(),
			TranslateTimeout:   cfg.GetTranslateTimeout(),
			MuxTimeout:         cfg.GetMuxTimeout(),
			Capacity:           capacity,
			Monitor:            monitor,
		})

	app := &Application{
		config:       cfg,
		zapLogger:    zapLogger,
		monitor:      monitor,
		capacity:     capacity,
		orchestrator: orchestrator,
		gpuInfo:      gpuInfo,
		health:       &ServiceHealth{startedAt: time.Now()},
	}

	app.server = server.New(zapLogger, orchestrator, tts.NewCatalog(zapLogger, lister), server.Options{
		UploadDir:             cfg.GetUploadDir(),
		OutputDir:             cfg.GetOutputDir(),
		SamplesDir:            cfg.GetSamplesDir(),
		CORSOrigins:           cfg.GetCORSOrigins(),
		BodyLimit:             cfg.GetBodyLimitBytes(),
		DefaultTargetLanguage: cfg.GetDefaultTargetLanguage(),
		StreamVoice:           cfg.GetFallbackVoice(),
		Health:                app.runSummary,
	})

	return app, nil
}

// Run serves HTTP until ctx ends or the listener fails
func (app *Application) Run(ctx context.Context) error {
	app.zapLogger.Info("starting videodubber",
		zap.String("address", app.config.GetServerAddress()),
		zap.String("transcriber", app.config.GetTranscriberBackend()),
		zap.String("translator", app.config.GetTranslatorBackend()),
		zap.String("tts", app.config.GetTTSBackend()),
		zap.Bool("gpu_available", app.gpuInfo.Available))

	select {
	case <-ctx.Done():
		app.zapLogger.Info("context cancelled before startup, shutting down immediately")
		return nil
	default:
	}

	if err := app.ensureDirectories(); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.server.Listen(app.config.GetServerAddress())
	}()
	app.setServerListening(true, nil)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHeartbeat(hbCtx)
	}()
	defer func() {
		stopHeartbeat()
		wg.Wait()
	}()

	select {
	case <-ctx.Done():
		app.zapLogger.Info("shutdown signal received, stopping application")
		return nil
	case err := <-serveErr:
		app.setServerListening(false, err)
		if err != nil {
			return fmt.Errorf("HTTP server stopped: %w", err)
		}
		return nil
	}
}

func (app *Application) ensureDirectories() error {
	for _, dir := range []string{app.config.GetUploadDir(), app.config.GetTempDir(), app.config.GetOutputDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (app *Application) setServerListening(listening bool, err error) {
	app.health.mu.Lock()
	defer app.health.mu.Unlock()
	app.health.serverListening = listening
	if err != nil {
		app.health.lastServeError = err.Error()
	}
}

// startHeartbeat periodically writes the health file and logs collaborator metrics
func (app *Application) startHeartbeat(ctx context.Context) {
	interval := app.config.GetHeartbeatInterval()
	if err := app.writeHealthStatusFile(app.config.GetHealthFile()); err != nil {
		app.zapLogger.Error("failed to write health status file", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := app.getHealthStatus()
			if err := app.writeHealthStatusFile(app.config.GetHealthFile()); err != nil {
				app.zapLogger.Error("failed to write health status file", zap.Error(err))
			}

			if app.config.GetDebugMode() {
				app.zapLogger.Info("heartbeat with health status", zap.Any("health_status", status))
				app.monitor.LogCurrentMetrics()
			}

			for name, m := range app.monitor.GetMetrics() {
				if m.Calls >= 5 && m.Failures*2 > m.Calls {
					app.zapLogger.Warn("collaborator failing for most calls",
						zap.String("collaborator", name),
						zap.Int64("calls", m.Calls),
						zap.Int64("failures", m.Failures),
						zap.String("last_error", m.LastError))
				}
			}
		}
	}
}

// Shutdown stops the HTTP server, cancels in-flight runs and writes a final health file
func (app *Application) Shutdown() error {
	app.zapLogger.Info("shutting down application components")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs error
	if err := app.server.Shutdown(ctx); err != nil {
		app.zapLogger.Error("error stopping HTTP server", zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	app.setServerListening(false, nil)

	app.zapLogger.Info("collaborator call summary", zap.String("summary", app.monitor.GetPerformanceSummary()))

	if err := app.writeHealthStatusFile(app.config.GetHealthFile()); err != nil {
		app.zapLogger.Warn("failed to write final health status", zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	app.zapLogger.Info("application shutdown completed")
	return errs
}
