package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// WhisperCppRecognizer runs the whisper.cpp command line tool with JSON output
type WhisperCppRecognizer struct {
	logger     *zap.Logger
	binaryPath string
	modelName  string
	modelPath  string
	downloader *ModelDownloader
	useGPU     bool
	gpuDevice  int
}

// WhisperCppOptions configures a WhisperCppRecognizer
type WhisperCppOptions struct {
	BinaryPath string
	ModelName  string
	ModelPath  string
	Downloader *ModelDownloader
	UseGPU     bool
	GPUDevice  int
}

// NewWhisperCppRecognizer creates a new WhisperCppRecognizer instance
func NewWhisperCppRecognizer(logger *zap.Logger, opts WhisperCppOptions) *WhisperCppRecognizer {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "whisper-cli"
	}
	return &WhisperCppRecognizer{
		logger:     logger.With(zap.String("component", "transcriber")),
		binaryPath: opts.BinaryPath,
		modelName:  opts.ModelName,
		modelPath:  opts.ModelPath,
		downloader: opts.Downloader,
		useGPU:     opts.UseGPU,
		gpuDevice:  opts.GPUDevice,
	}
}

// whisperOutput matches the file written by whisper-cli -oj
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe runs whisper-cli on a 16 kHz mono WAV and parses its JSON output
func (w *WhisperCppRecognizer) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	if err := w.ensureModel(ctx); err != nil {
		return nil, err
	}

	outBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_whisper"
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-l", "auto",
		"-oj",
		"-of", outBase,
		"-np",
	}
	if w.useGPU {
		args = append(args, "-dev", fmt.Sprintf("%d", w.gpuDevice))
	} else {
		args = append(args, "-ng")
	}

	w.logger.Info("running whisper.cpp",
		zap.String("audio", audioPath),
		zap.String("model", w.modelPath),
		zap.Bool("use_gpu", w.useGPU))

	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, w.binaryPath)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("whisper.cpp interrupted: %w", ctx.Err())
		}
		w.logger.Warn("whisper.cpp failed", zap.String("output", lastLine(string(output))))
		return nil, fmt.Errorf("whisper.cpp failed: %w", err)
	}

	jsonPath := outBase + ".json"
	defer os.Remove(jsonPath)

	return parseWhisperOutput(jsonPath)
}

func (w *WhisperCppRecognizer) ensureModel(ctx context.Context) error {
	if w.modelPath == "" {
		return fmt.Errorf("%w: model path not configured", ErrEngineUnavailable)
	}
	if w.downloader == nil {
		if _, err := os.Stat(w.modelPath); err != nil {
			return fmt.Errorf("%w: model %s: %v", ErrEngineUnavailable, w.modelPath, err)
		}
		return nil
	}
	if err := w.downloader.EnsureModelExists(ctx, w.modelName, w.modelPath); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

func parseWhisperOutput(path string) (*Transcription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	t := &Transcription{
		Language: NormalizeLanguage(out.Result.Language),
		Segments: make([]TranscriptionSegment, 0, len(out.Transcription)),
	}
	for _, seg := range out.Transcription {
		t.Segments = append(t.Segments, TranscriptionSegment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return t, t.Validate()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
