package transcriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModelDownloader fetches ggml Whisper models from HuggingFace on first use
type ModelDownloader struct {
	logger    *zap.Logger
	modelsDir string
	client    *http.Client
	baseURL   string
}

// NewModelDownloader creates a new model downloader instance
func NewModelDownloader(logger *zap.Logger, modelsDir string) *ModelDownloader {
	return &ModelDownloader{
		logger:    logger.With(zap.String("component", "model_downloader")),
		modelsDir: modelsDir,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
		baseURL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
	}
}

var knownModels = []string{
	"tiny.en", "tiny",
	"base.en", "base",
	"small.en", "small",
	"medium.en", "medium",
	"large-v1", "large-v2", "large-v3",
}

// IsValidModelName checks if a model name is in the list of known models
func (d *ModelDownloader) IsValidModelName(modelName string) bool {
	for _, available := range knownModels {
		if strings.EqualFold(available, modelName) {
			return true
		}
	}
	return false
}

// GetModelPath returns the full path for a given model name
func (d *ModelDownloader) GetModelPath(modelName string) string {
	return filepath.Join(d.modelsDir, fmt.Sprintf("ggml-%s.bin", modelName))
}

// EnsureModelExists checks if a model file exists, and downloads it if it doesn't
func (d *ModelDownloader) EnsureModelExists(ctx context.Context, modelName, modelPath string) error {
	if _, err := os.Stat(modelPath); err == nil {
		d.logger.Debug("model already exists",
			zap.String("model", modelName),
			zap.String("path", modelPath))
		return nil
	}

	if !d.IsValidModelName(modelName) {
		return fmt.Errorf("model %s not found at %s and is not a known downloadable model", modelName, modelPath)
	}

	d.logger.Info("model not found locally, attempting download",
		zap.String("model", modelName),
		zap.String("path", modelPath))

	if err := os.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	return d.downloadModel(ctx, modelName, modelPath)
}

func (d *ModelDownloader) downloadModel(ctx context.Context, modelName, modelPath string) error {
	url := fmt.Sprintf("%s/ggml-%s.bin", d.baseURL, modelName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "videodubber (Go HTTP Client)")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	// Write to a temp file and rename so a partial download never looks complete
	tempFile := modelPath + ".tmp"
	defer os.Remove(tempFile)

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	progress := &progressWriter{
		logger:   d.logger,
		model:    modelName,
		total:    resp.ContentLength,
		interval: 10 * time.Second,
		last:     time.Now(),
	}
	written, err := io.Copy(io.MultiWriter(out, progress), resp.Body)
	closeErr := out.Close()
	if err != nil {
		return fmt.Errorf("failed to download model data: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finish model file: %w", closeErr)
	}

	if err := os.Rename(tempFile, modelPath); err != nil {
		return fmt.Errorf("failed to move downloaded model to final location: %w", err)
	}

	d.logger.Info("model download completed successfully",
		zap.String("model", modelName),
		zap.String("path", modelPath),
		zap.Int64("bytes", written))

	return nil
}

// progressWriter logs download progress at most once per interval
type progressWriter struct {
	logger   *zap.Logger
	model    string
	total    int64
	written  int64
	interval time.Duration
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		fields := []zap.Field{zap.String("model", p.model), zap.Int64("downloaded", p.written)}
		if p.total > 0 {
			fields = append(fields,
				zap.Int64("total", p.total),
				zap.Float64("percentage", float64(p.written)/float64(p.total)*100))
		}
		p.logger.Info("download progress", fields...)
		p.last = now
	}
	return len(b), nil
}
