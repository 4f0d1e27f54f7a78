package server

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"videodubber/internal/events"
	"videodubber/internal/pipeline"
	"videodubber/internal/tts"
)

// APIPrefix is where the video routes are mounted
const APIPrefix = "/api/v1/video"

// Pipeline runs dubbing jobs for uploaded videos
type Pipeline interface {
	Process(ctx context.Context, req pipeline.Request, reporter events.Reporter) (*pipeline.Result, error)
	ProcessStream(ctx context.Context, req pipeline.Request, stream *events.Stream) (*pipeline.Result, error)
}

// VoiceCatalog lists the voices offered to clients
type VoiceCatalog interface {
	ForLanguage(ctx context.Context, language string) ([]tts.Voice, bool)
	All(ctx context.Context, perLanguage int) []tts.LanguageVoices
}

// Options configures the HTTP surface
type Options struct {
	UploadDir             string
	OutputDir             string
	SamplesDir            string
	CORSOrigins           string
	BodyLimit             int
	DefaultTargetLanguage string
	// StreamVoice is used by upload-stream when the client names no voice
	StreamVoice string
	// Health returns extra fields for GET /health; may be nil
	Health func() map[string]interface{}
}

// Server is the fiber application serving uploads, progress streams and downloads
type Server struct {
	app      *fiber.App
	logger   *zap.Logger
	pipeline Pipeline
	voices   VoiceCatalog
	opts     Options

	// runs outlive their request handler, so they hang off the server's context
	runCtx   context.Context
	stopRuns context.CancelFunc
}

// New creates a new Server instance with all routes registered
func New(logger *zap.Logger, p Pipeline, voices VoiceCatalog, opts Options) *Server {
	if opts.DefaultTargetLanguage == "" {
		opts.DefaultTargetLanguage = "ru"
	}
	if opts.StreamVoice == "" {
		opts.StreamVoice = tts.DefaultFallbackVoice
	}

	logger = logger.With(zap.String("component", "server"))
	runCtx, stopRuns := context.WithCancel(context.Background())

	s := &Server{
		logger:   logger,
		pipeline: p,
		voices:   voices,
		opts:     opts,
		runCtx:   runCtx,
		stopRuns: stopRuns,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "videodubber",
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	if s.opts.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     s.opts.CORSOrigins,
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		}))
	}
	s.app.Use(RequestLogger(s.logger))

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "API v1"})
	})
	s.app.Get("/health", s.handleHealth)

	if s.opts.SamplesDir != "" {
		if info, err := os.Stat(s.opts.SamplesDir); err == nil && info.IsDir() {
			s.app.Static("/samples", s.opts.SamplesDir)
		} else {
			s.logger.Warn("samples directory not found", zap.String("dir", s.opts.SamplesDir))
		}
	}

	video := s.app.Group(APIPrefix)
	video.Post("/upload", s.handleUpload)
	video.Post("/upload-stream", s.handleUploadStream)
	video.Get("/download/:file", s.handleDownload)
	video.Get("/voices", s.handleVoices)
	video.Get("/voices/:language", s.handleVoicesByLanguage)
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown cancels running jobs and stops the listener, waiting up to the ctx deadline
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopRuns()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok"}
	if s.opts.Health != nil {
		for k, v := range s.opts.Health() {
			body[k] = v
		}
	}
	return c.JSON(body)
}

// handleError renders every error the way the original API did: {"detail": message}
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestID(c)),
			zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"detail": strings.TrimSpace(err.Error())})
}
