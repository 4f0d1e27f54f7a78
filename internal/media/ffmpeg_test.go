package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// writeScript installs an executable shell script standing in for ffmpeg or ffprobe
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// recordingFFmpeg writes its arguments to argsFile and succeeds
func recordingFFmpeg(t *testing.T) (string, string) {
	t.Helper()
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	script := writeScript(t, "ffmpeg", `for a in "$@"; do echo "$a" >> `+argsFile+`; done`)
	return script, argsFile
}

func readArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestFFmpeg_Duration(t *testing.T) {
	t.Run("should parse format duration from ffprobe json", func(t *testing.T) {
		// Arrange
		probe := writeScript(t, "ffprobe", `echo '{"format":{"duration":"12.500000","bit_rate":"1000"}}'`)
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", probe)

		// Act
		d, err := f.Duration(context.Background(), "video.mp4")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 12500*time.Millisecond, d)
	})

	t.Run("should fail on missing duration", func(t *testing.T) {
		probe := writeScript(t, "ffprobe", `echo '{"format":{}}'`)
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", probe)

		_, err := f.Duration(context.Background(), "video.mp4")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no usable duration")
	})

	t.Run("should fail on malformed output", func(t *testing.T) {
		probe := writeScript(t, "ffprobe", `echo 'not json'`)
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", probe)

		_, err := f.Duration(context.Background(), "video.mp4")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse ffprobe output")
	})

	t.Run("should fail when ffprobe exits non-zero", func(t *testing.T) {
		probe := writeScript(t, "ffprobe", `exit 1`)
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", probe)

		_, err := f.Duration(context.Background(), "video.mp4")

		assert.Error(t, err)
	})

	t.Run("should report a missing binary", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", "definitely-not-a-real-ffprobe")

		_, err := f.Duration(context.Background(), "video.mp4")

		assert.ErrorIs(t, err, ErrBinaryNotFound)
	})

	t.Run("should require a path", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t), "", "")

		_, err := f.Duration(context.Background(), "")

		assert.Error(t, err)
	})
}

func TestFFmpeg_Commands(t *testing.T) {
	t.Run("should extract mono 16 kHz pcm", func(t *testing.T) {
		// Arrange
		script, argsFile := recordingFFmpeg(t)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")

		// Act
		err := f.ExtractAudio(context.Background(), "in.mp4", "out.wav")

		// Assert
		require.NoError(t, err)
		args := readArgs(t, argsFile)
		assert.Equal(t, "-y", args[0])
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-i in.mp4")
		assert.Contains(t, joined, "-acodec pcm_s16le -ar 16000 -ac 1 out.wav")
	})

	t.Run("should decode at the requested rate", func(t *testing.T) {
		script, argsFile := recordingFFmpeg(t)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")

		require.NoError(t, f.Decode(context.Background(), "in.mp3", "out.wav", 48000))

		assert.Contains(t, strings.Join(readArgs(t, argsFile), " "), "-ar 48000 -ac 1 out.wav")
	})

	t.Run("should reject a non-positive decode rate", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t), "ffmpeg", "ffprobe")

		assert.Error(t, f.Decode(context.Background(), "in.mp3", "out.wav", 0))
	})

	t.Run("should chain atempo filters when stretching", func(t *testing.T) {
		script, argsFile := recordingFFmpeg(t)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")

		require.NoError(t, f.Stretch(context.Background(), "in.wav", "out.wav", []float64{2.0, 1.5}))

		assert.Contains(t, readArgs(t, argsFile), "atempo=2.000000,atempo=1.500000")
	})

	t.Run("should copy video and never shorten when replacing audio", func(t *testing.T) {
		script, argsFile := recordingFFmpeg(t)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")

		require.NoError(t, f.ReplaceAudio(context.Background(), "v.mp4", "a.wav", "o.mp4"))

		args := readArgs(t, argsFile)
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-map 0:v -map 1:a -c:v copy -c:a aac o.mp4")
		assert.NotContains(t, args, "-shortest")
	})

	t.Run("should include stderr tail in failures", func(t *testing.T) {
		script := writeScript(t, "ffmpeg", `echo "in.wav: No such file or directory" >&2; exit 1`)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")

		err := f.Decode(context.Background(), "in.wav", "out.wav", 48000)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ffmpeg decode failed")
		assert.Contains(t, err.Error(), "No such file or directory")
	})

	t.Run("should report a missing ffmpeg binary", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t), "definitely-not-a-real-ffmpeg", "ffprobe")

		err := f.ExtractAudio(context.Background(), "in.mp4", "out.wav")

		assert.ErrorIs(t, err, ErrBinaryNotFound)
	})

	t.Run("should stop on context cancellation", func(t *testing.T) {
		script := writeScript(t, "ffmpeg", `exec sleep 5`)
		f := NewFFmpeg(zaptest.NewLogger(t), script, "ffprobe")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := f.ExtractAudio(ctx, "in.mp4", "out.wav")

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAtempoFilter(t *testing.T) {
	t.Run("should reject empty chains", func(t *testing.T) {
		_, err := AtempoFilter(nil)
		assert.Error(t, err)
	})

	t.Run("should reject factors outside the primitive range", func(t *testing.T) {
		for _, factor := range []float64{0.49, 2.01, 0} {
			_, err := AtempoFilter([]float64{factor})
			assert.Error(t, err, "factor %v", factor)
		}
	})

	t.Run("should accept range boundaries", func(t *testing.T) {
		filter, err := AtempoFilter([]float64{0.5, 2.0})
		require.NoError(t, err)
		assert.Equal(t, "atempo=0.500000,atempo=2.000000", filter)
	})
}

func TestContainsFFmpegError(t *testing.T) {
	assert.True(t, containsFFmpegError("Error opening input file"))
	assert.True(t, containsFFmpegError("x.mp4: Invalid data found when processing input"))
	assert.False(t, containsFFmpegError("Stream mapping:"))
}
