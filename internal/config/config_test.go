package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfiguration_Defaults(t *testing.T) {
	t.Run("should expose the pipeline defaults", func(t *testing.T) {
		// Act
		cfg := NewConfiguration()

		// Assert
		assert.Equal(t, 60*time.Second, cfg.GetMaxDuration())
		assert.Equal(t, 48000, cfg.GetSampleRate())
		assert.Equal(t, 20*time.Millisecond, cfg.GetGapThreshold())
		assert.Equal(t, 50*time.Millisecond, cfg.GetMinSpeechDuration())
		assert.Equal(t, "ru", cfg.GetDefaultTargetLanguage())
		assert.Equal(t, 4, cfg.GetSegmentConcurrency())
		assert.Equal(t, 8, cfg.GetSharedCapacity())
	})

	t.Run("should expose collaborator defaults", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.Equal(t, "whispercpp", cfg.GetTranscriberBackend())
		assert.Equal(t, "mymemory", cfg.GetTranslatorBackend())
		assert.Equal(t, "edge-tts", cfg.GetTTSBackend())
		assert.Equal(t, "en-US-AdamMultilingualNeural", cfg.GetFallbackVoice())
		assert.Equal(t, 2, cfg.GetTranslatorMaxAttempts())
		assert.Equal(t, 30*time.Second, cfg.GetTranslateTimeout())
		assert.Equal(t, 60*time.Second, cfg.GetSynthesizeTimeout())
		assert.Contains(t, cfg.GetMyMemoryURL(), "https://")
	})

	t.Run("should expose storage and server defaults", func(t *testing.T) {
		cfg := NewConfiguration()

		assert.Equal(t, ":8000", cfg.GetServerAddress())
		assert.Equal(t, "./uploads", cfg.GetUploadDir())
		assert.Equal(t, "./temp", cfg.GetTempDir())
		assert.Equal(t, "./outputs", cfg.GetOutputDir())
		assert.Equal(t, "./samples", cfg.GetSamplesDir())
		assert.Equal(t, 512*1024*1024, cfg.GetBodyLimitBytes())
		assert.False(t, cfg.GetDebugMode())
	})
}

func TestNewConfigurationFromFile(t *testing.T) {
	t.Run("should load values from a yaml file", func(t *testing.T) {
		// Arrange
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")
		configContent := `pipeline:
  max_duration_sec: 30
  segment_concurrency: 2
translator:
  backend: openai
tts:
  fallback_voice: "de-DE-ConradNeural"
app:
  debug: true`
		require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

		// Act
		cfg, err := NewConfigurationFromFile(configFile)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.GetMaxDuration())
		assert.Equal(t, 2, cfg.GetSegmentConcurrency())
		assert.Equal(t, "openai", cfg.GetTranslatorBackend())
		assert.Equal(t, "de-DE-ConradNeural", cfg.GetFallbackVoice())
		assert.True(t, cfg.GetDebugMode())
		// untouched keys keep defaults
		assert.Equal(t, 48000, cfg.GetSampleRate())
	})

	t.Run("should return error for non-existent config file", func(t *testing.T) {
		cfg, err := NewConfigurationFromFile(filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("should return error for invalid config file format", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "invalid.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("pipeline: [unclosed"), 0644))

		cfg, err := NewConfigurationFromFile(configFile)

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}

func TestNewConfigurationFromEnv(t *testing.T) {
	t.Run("should read prefixed nested keys", func(t *testing.T) {
		// Arrange
		t.Setenv("DUBBER_PIPELINE_MAX_DURATION_SEC", "45")
		t.Setenv("DUBBER_TTS_BACKEND", "OpenAI")
		t.Setenv("DUBBER_STORAGE_OUTPUT_DIR", "/data/out")

		// Act
		cfg, err := NewConfigurationFromEnv()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.GetMaxDuration())
		assert.Equal(t, "openai", cfg.GetTTSBackend())
		assert.Equal(t, "/data/out", cfg.GetOutputDir())
	})

	t.Run("should fall back to the conventional openai key variable", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg, err := NewConfigurationFromEnv()

		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.GetOpenAIAPIKey())
	})
}

func TestConfiguration_Clamping(t *testing.T) {
	t.Run("should never report less than one worker", func(t *testing.T) {
		cfg := NewConfiguration()
		cfg.Set("pipeline.segment_concurrency", 0)
		cfg.Set("pipeline.shared_capacity", -3)
		cfg.Set("translator.max_attempts", 0)

		assert.Equal(t, 1, cfg.GetSegmentConcurrency())
		assert.Equal(t, 1, cfg.GetSharedCapacity())
		assert.Equal(t, 1, cfg.GetTranslatorMaxAttempts())
	})

	t.Run("should default a non-positive heartbeat", func(t *testing.T) {
		cfg := NewConfiguration()
		cfg.Set("app.heartbeat_sec", 0)

		assert.Equal(t, 30*time.Second, cfg.GetHeartbeatInterval())
	})
}
