package server

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"videodubber/internal/events"
	"videodubber/internal/pipeline"
	"videodubber/internal/tts"
)

// voicesPerLanguage caps the GET /voices listing
const voicesPerLanguage = 6

// uploadParams are the non-file inputs of both upload routes
type uploadParams struct {
	TargetLanguage string `validate:"required,min=2,max=16,excludesall=/\\"`
	Voice          string `validate:"omitempty,max=128,printascii"`
}

var validate = validator.New()

func (s *Server) handleUpload(c *fiber.Ctx) error {
	req, err := s.receiveUpload(c, "")
	if err != nil {
		return err
	}

	result, err := s.pipeline.Process(c.UserContext(), req, nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}

	return c.JSON(fiber.Map{
		"status":               "success",
		"message":              "Video translated successfully",
		"original_video":       req.OriginalName,
		"translated_video":     result.TranslatedVideo,
		"transcription":        result.Transcription,
		"original_language":    result.OriginalLanguage,
		"target_language":      result.TargetLanguage,
		"full_translated_text": result.FullTranslatedText(),
	})
}

// handleUploadStream answers with a server-sent event stream. The run is
// canceled as soon as a write to the client fails.
func (s *Server) handleUploadStream(c *fiber.Ctx) error {
	req, err := s.receiveUpload(c, s.opts.StreamVoice)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(s.runCtx)
	stream := events.NewStream(ctx, 16)
	log := s.logger.With(zap.String("request_id", requestID(c)))

	go func() {
		// failures are logged by the orchestrator and delivered as the error event
		_, _ = s.pipeline.ProcessStream(ctx, req, stream)
	}()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range stream.Events() {
			if err := events.WriteSSE(w, ev); err != nil {
				log.Info("client disconnected, canceling run", zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				log.Info("client disconnected, canceling run", zap.Error(err))
				return
			}
		}
	}))
	return nil
}

// receiveUpload validates the parameters and stores the uploaded file under a unique name
func (s *Server) receiveUpload(c *fiber.Ctx, defaultVoice string) (pipeline.Request, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return pipeline.Request{}, fiber.NewError(fiber.StatusBadRequest, "file is required")
	}

	params := uploadParams{
		TargetLanguage: param(c, "target_language", s.opts.DefaultTargetLanguage),
		Voice:          param(c, "voice", defaultVoice),
	}
	if err := validate.Struct(params); err != nil {
		return pipeline.Request{}, fiber.NewError(fiber.StatusBadRequest, formatValidationErrors(err))
	}

	name := sanitizeFileName(fh.Filename)
	if err := os.MkdirAll(s.opts.UploadDir, 0755); err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.opts.UploadDir, uuid.NewString()[:8]+"_"+name)
	if err := c.SaveFile(fh, path); err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to save upload: %w", err)
	}

	s.logger.Info("upload received",
		zap.String("request_id", requestID(c)),
		zap.String("file", name),
		zap.Int64("bytes", fh.Size),
		zap.String("target_language", params.TargetLanguage),
		zap.String("voice", params.Voice))

	return pipeline.Request{
		VideoPath:      path,
		OriginalName:   name,
		TargetLanguage: params.TargetLanguage,
		Voice:          params.Voice,
	}, nil
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("file"))
	if err != nil || name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid file name")
	}

	path := filepath.Join(s.opts.OutputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fiber.NewError(fiber.StatusNotFound, "File not found")
	}

	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+name)
	return c.SendFile(path)
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	return c.JSON(s.voices.All(c.UserContext(), voicesPerLanguage))
}

func (s *Server) handleVoicesByLanguage(c *fiber.Ctx) error {
	language := c.Params("language")
	voices, ok := s.voices.ForLanguage(c.UserContext(), language)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Language '%s' not supported", language),
		})
	}
	return c.JSON(tts.LanguageVoices{Locale: language, Voices: voices})
}

// param reads a multipart field, falling back to the query string and then def
func param(c *fiber.Ctx, key, def string) string {
	if v := strings.TrimSpace(c.FormValue(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return v
	}
	return def
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "video.mp4"
	}
	return name
}

func formatValidationErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
