package media

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBinaryNotFound is returned when ffmpeg or ffprobe cannot be executed
var ErrBinaryNotFound = errors.New("media binary not found")

const stderrTailLines = 5

// FFmpeg runs ffmpeg and ffprobe child processes for every media operation
type FFmpeg struct {
	logger      *zap.Logger
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(logger *zap.Logger, ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		logger:      logger.With(zap.String("component", "media")),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// probeResult matches the subset of ffprobe JSON output we read
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration reported by ffprobe
func (f *FFmpeg) Duration(ctx context.Context, videoPath string) (time.Duration, error) {
	if videoPath == "" {
		return 0, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrBinaryNotFound, f.ffprobePath)
		}
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported no usable duration %q: %w", probe.Format.Duration, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("ffprobe reported negative duration %f", seconds)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// ExtractAudio writes the source audio as mono 16-bit 16 kHz WAV for speech recognition
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	return f.run(ctx, "extract",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath,
	)
}

// Decode converts any audio file into mono 16-bit WAV at the given sample rate
func (f *FFmpeg) Decode(ctx context.Context, inPath, outPath string, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return f.run(ctx, "decode",
		"-i", inPath,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		outPath,
	)
}

// Stretch applies a pitch-preserving atempo chain. Every factor must lie in [0.5, 2.0].
func (f *FFmpeg) Stretch(ctx context.Context, inPath, outPath string, factors []float64) error {
	filter, err := AtempoFilter(factors)
	if err != nil {
		return err
	}
	return f.run(ctx, "stretch",
		"-i", inPath,
		"-filter:a", filter,
		"-acodec", "pcm_s16le",
		outPath,
	)
}

// ReplaceAudio copies the video stream and encodes the new audio track as AAC.
// The output is not cut to the shorter stream.
func (f *FFmpeg) ReplaceAudio(ctx context.Context, videoPath, audioPath, outPath string) error {
	return f.run(ctx, "mux",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		outPath,
	)
}

// AtempoFilter renders factors as an ffmpeg filter graph
func AtempoFilter(factors []float64) (string, error) {
	if len(factors) == 0 {
		return "", fmt.Errorf("atempo chain is empty")
	}
	parts := make([]string, 0, len(factors))
	for _, factor := range factors {
		if !(factor >= 0.5 && factor <= 2.0) {
			return "", fmt.Errorf("atempo factor %f outside [0.5, 2.0]", factor)
		}
		parts = append(parts, "atempo="+strconv.FormatFloat(factor, 'f', 6, 64))
	}
	return strings.Join(parts, ","), nil
}

// run executes ffmpeg, overwriting outputs, and logs its stderr
func (f *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	fullArgs := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)

	f.logger.Debug("executing ffmpeg",
		zap.String("operation", op),
		zap.Strings("args", fullArgs))

	cmd := exec.CommandContext(ctx, f.ffmpegPath, fullArgs...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBinaryNotFound, f.ffmpegPath)
		}
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	var tail []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		tail = f.handleStderr(op, stderr)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg %s interrupted: %w", op, ctxErr)
		}
		if len(tail) > 0 {
			return fmt.Errorf("ffmpeg %s failed: %w: %s", op, err, strings.Join(tail, "; "))
		}
		return fmt.Errorf("ffmpeg %s failed: %w", op, err)
	}

	return nil
}

// handleStderr logs ffmpeg stderr lines and returns the last few of them
func (f *FFmpeg) handleStderr(op string, r io.Reader) []string {
	var tail []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if containsFFmpegError(line) {
			f.logger.Warn("ffmpeg stderr", zap.String("operation", op), zap.String("output", line))
		} else {
			f.logger.Debug("ffmpeg stderr", zap.String("operation", op), zap.String("output", line))
		}
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[1:]
		}
	}
	return tail
}

// containsFFmpegError checks if stderr output contains actual errors vs info
func containsFFmpegError(output string) bool {
	errorIndicators := []string{
		"Error",
		"Invalid data",
		"No such file",
		"Permission denied",
		"does not contain any stream",
	}
	for _, indicator := range errorIndicators {
		if strings.Contains(output, indicator) {
			return true
		}
	}
	return false
}
