package tts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// EdgeTTSEngine drives the edge-tts command line client
type EdgeTTSEngine struct {
	logger     *zap.Logger
	binaryPath string
}

// NewEdgeTTSEngine creates a new EdgeTTSEngine instance
func NewEdgeTTSEngine(logger *zap.Logger, binaryPath string) *EdgeTTSEngine {
	if binaryPath == "" {
		binaryPath = "edge-tts"
	}
	return &EdgeTTSEngine{
		logger:     logger.With(zap.String("component", "tts")),
		binaryPath: binaryPath,
	}
}

// Synthesize writes natural-rate speech for text to outPath
func (e *EdgeTTSEngine) Synthesize(ctx context.Context, text, voiceID, outPath string) error {
	if voiceID == "" {
		return fmt.Errorf("voice id is required")
	}

	cmd := exec.CommandContext(ctx, e.binaryPath,
		"--voice", voiceID,
		"--text", text,
		"--write-media", outPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEngineUnavailable, e.binaryPath)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("edge-tts interrupted: %w", ctx.Err())
		}
		msg := strings.TrimSpace(string(output))
		if strings.Contains(msg, "No audio was received") || strings.Contains(msg, "Invalid voice") {
			return fmt.Errorf("%w: voice %s: %s", ErrEngineUnavailable, voiceID, msg)
		}
		return fmt.Errorf("edge-tts failed: %w: %s", err, msg)
	}

	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("edge-tts produced no audio at %s", outPath)
	}

	e.logger.Debug("synthesized speech",
		zap.String("voice", voiceID),
		zap.Int("chars", len(text)))

	return nil
}

// ListVoices runs edge-tts --list-voices and parses either output layout
func (e *EdgeTTSEngine) ListVoices(ctx context.Context) ([]Voice, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--list-voices").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, e.binaryPath)
		}
		return nil, fmt.Errorf("edge-tts --list-voices failed: %w", err)
	}
	return parseVoiceList(string(output)), nil
}

// parseVoiceList understands the tabular layout ("Name  Gender ...") and the older
// "Name: x" / "Gender: y" blocks.
func parseVoiceList(output string) []Voice {
	var voices []Voice
	var current Voice

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Name: "):
			current = Voice{ID: strings.TrimSpace(strings.TrimPrefix(line, "Name: "))}
		case strings.HasPrefix(line, "Gender: "):
			current.Gender = strings.TrimSpace(strings.TrimPrefix(line, "Gender: "))
			if current.ID != "" {
				voices = append(voices, current)
			}
			current = Voice{}
		case strings.HasPrefix(line, "Name ") || strings.HasPrefix(line, "---"):
			continue
		default:
			fields := strings.Fields(line)
			if len(fields) >= 2 && strings.Count(fields[0], "-") >= 2 {
				voices = append(voices, Voice{ID: fields[0], Gender: fields[1]})
			}
		}
	}
	return voices
}
