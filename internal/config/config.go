package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// setDefaults registers every key with its default so env lookups resolve
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("server.body_limit_mb", 512)

	v.SetDefault("storage.upload_dir", "./uploads")
	v.SetDefault("storage.temp_dir", "./temp")
	v.SetDefault("storage.output_dir", "./outputs")
	v.SetDefault("storage.samples_dir", "./samples")

	v.SetDefault("pipeline.max_duration_sec", 60)
	v.SetDefault("pipeline.segment_concurrency", 4)
	v.SetDefault("pipeline.shared_capacity", 8)
	v.SetDefault("pipeline.sample_rate", 48000)
	v.SetDefault("pipeline.default_target_language", "ru")
	v.SetDefault("pipeline.gap_threshold_ms", 20)
	v.SetDefault("pipeline.min_speech_ms", 50)

	v.SetDefault("timeouts.probe_sec", 30)
	v.SetDefault("timeouts.extract_sec", 120)
	v.SetDefault("timeouts.transcribe_sec", 600)
	v.SetDefault("timeouts.translate_sec", 30)
	v.SetDefault("timeouts.synthesize_sec", 60)
	v.SetDefault("timeouts.stretch_sec", 60)
	v.SetDefault("timeouts.mux_sec", 300)

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")

	v.SetDefault("transcriber.backend", "whispercpp")
	v.SetDefault("transcriber.binary_path", "whisper-cli")
	v.SetDefault("transcriber.model_name", "base")
	v.SetDefault("transcriber.model_path", "./models/ggml-base.bin")
	v.SetDefault("transcriber.models_dir", "./models")
	v.SetDefault("transcriber.gpu_device", 0)

	v.SetDefault("translator.backend", "mymemory")
	v.SetDefault("translator.mymemory_url", "https://api.mymemory.translated.net/get")
	v.SetDefault("translator.max_attempts", 2)
	v.SetDefault("translator.retry_backoff_ms", 500)

	v.SetDefault("tts.backend", "edge-tts")
	v.SetDefault("tts.binary_path", "edge-tts")
	v.SetDefault("tts.fallback_voice", "en-US-AdamMultilingualNeural")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.tts_model", "tts-1")
	v.SetDefault("openai.transcription_model", "whisper-1")

	v.SetDefault("app.debug", false)
	v.SetDefault("app.health_file", "/tmp/videodubber-health.json")
	v.SetDefault("app.heartbeat_sec", 30)
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	// DUBBER_PIPELINE_MAX_DURATION_SEC -> pipeline.max_duration_sec
	v.SetEnvPrefix("DUBBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variables shared with other tooling
	if err := v.BindEnv("openai.api_key", "DUBBER_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind openai api key: %w", err)
	}
	if err := v.BindEnv("openai.base_url", "DUBBER_OPENAI_BASE_URL", "OPENAI_BASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind openai base url: %w", err)
	}

	return &Configuration{viper: v}, nil
}

// Set overrides a single key, mainly for tests and CLI flags
func (c *Configuration) Set(key string, value interface{}) {
	c.viper.Set(key, value)
}

// GetServerAddress returns the HTTP listen address
func (c *Configuration) GetServerAddress() string {
	return c.viper.GetString("server.address")
}

// GetCORSOrigins returns the comma-separated list of allowed origins
func (c *Configuration) GetCORSOrigins() string {
	return c.viper.GetString("server.cors_origins")
}

// GetBodyLimitBytes returns the maximum accepted request body size
func (c *Configuration) GetBodyLimitBytes() int {
	return c.viper.GetInt("server.body_limit_mb") * 1024 * 1024
}

func (c *Configuration) GetUploadDir() string {
	return c.viper.GetString("storage.upload_dir")
}

func (c *Configuration) GetTempDir() string {
	return c.viper.GetString("storage.temp_dir")
}

func (c *Configuration) GetOutputDir() string {
	return c.viper.GetString("storage.output_dir")
}

func (c *Configuration) GetSamplesDir() string {
	return c.viper.GetString("storage.samples_dir")
}

// GetMaxDuration returns the ceiling on source media length
func (c *Configuration) GetMaxDuration() time.Duration {
	return time.Duration(c.viper.GetFloat64("pipeline.max_duration_sec") * float64(time.Second))
}

// GetSegmentConcurrency returns how many segments of one run may call collaborators at once
func (c *Configuration) GetSegmentConcurrency() int {
	n := c.viper.GetInt("pipeline.segment_concurrency")
	if n < 1 {
		return 1
	}
	return n
}

// GetSharedCapacity returns the collaborator call slots shared by all runs
func (c *Configuration) GetSharedCapacity() int {
	n := c.viper.GetInt("pipeline.shared_capacity")
	if n < 1 {
		return 1
	}
	return n
}

func (c *Configuration) GetSampleRate() int {
	return c.viper.GetInt("pipeline.sample_rate")
}

func (c *Configuration) GetDefaultTargetLanguage() string {
	return c.viper.GetString("pipeline.default_target_language")
}

// GetGapThreshold returns the smallest inter-segment gap rendered as silence
func (c *Configuration) GetGapThreshold() time.Duration {
	return time.Duration(c.viper.GetInt("pipeline.gap_threshold_ms")) * time.Millisecond
}

// GetMinSpeechDuration returns the shortest synthesized audio treated as speech
func (c *Configuration) GetMinSpeechDuration() time.Duration {
	return time.Duration(c.viper.GetInt("pipeline.min_speech_ms")) * time.Millisecond
}

func (c *Configuration) seconds(key string) time.Duration {
	return time.Duration(c.viper.GetInt(key)) * time.Second
}

func (c *Configuration) GetProbeTimeout() time.Duration      { return c.seconds("timeouts.probe_sec") }
func (c *Configuration) GetExtractTimeout() time.Duration    { return c.seconds("timeouts.extract_sec") }
func (c *Configuration) GetTranscribeTimeout() time.Duration { return c.seconds("timeouts.transcribe_sec") }
func (c *Configuration) GetTranslateTimeout() time.Duration  { return c.seconds("timeouts.translate_sec") }
func (c *Configuration) GetSynthesizeTimeout() time.Duration { return c.seconds("timeouts.synthesize_sec") }
func (c *Configuration) GetStretchTimeout() time.Duration    { return c.seconds("timeouts.stretch_sec") }
func (c *Configuration) GetMuxTimeout() time.Duration        { return c.seconds("timeouts.mux_sec") }

func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("ffmpeg.path")
}

func (c *Configuration) GetFFprobePath() string {
	return c.viper.GetString("ffmpeg.probe_path")
}

// GetTranscriberBackend returns "whispercpp" or "openai"
func (c *Configuration) GetTranscriberBackend() string {
	return strings.ToLower(c.viper.GetString("transcriber.backend"))
}

func (c *Configuration) GetWhisperBinaryPath() string {
	return c.viper.GetString("transcriber.binary_path")
}

func (c *Configuration) GetWhisperModelName() string {
	return c.viper.GetString("transcriber.model_name")
}

// GetWhisperModelPath returns the configured Whisper model path
func (c *Configuration) GetWhisperModelPath() string {
	return c.viper.GetString("transcriber.model_path")
}

func (c *Configuration) GetWhisperModelsDir() string {
	return c.viper.GetString("transcriber.models_dir")
}

func (c *Configuration) GetGPUDevice() int {
	return c.viper.GetInt("transcriber.gpu_device")
}

// GetTranslatorBackend returns "mymemory" or "openai"
func (c *Configuration) GetTranslatorBackend() string {
	return strings.ToLower(c.viper.GetString("translator.backend"))
}

func (c *Configuration) GetMyMemoryURL() string {
	return c.viper.GetString("translator.mymemory_url")
}

func (c *Configuration) GetTranslatorMaxAttempts() int {
	n := c.viper.GetInt("translator.max_attempts")
	if n < 1 {
		return 1
	}
	return n
}

func (c *Configuration) GetTranslatorRetryBackoff() time.Duration {
	return time.Duration(c.viper.GetInt("translator.retry_backoff_ms")) * time.Millisecond
}

// GetTTSBackend returns "edge-tts" or "openai"
func (c *Configuration) GetTTSBackend() string {
	return strings.ToLower(c.viper.GetString("tts.backend"))
}

func (c *Configuration) GetTTSBinaryPath() string {
	return c.viper.GetString("tts.binary_path")
}

func (c *Configuration) GetFallbackVoice() string {
	return c.viper.GetString("tts.fallback_voice")
}

func (c *Configuration) GetOpenAIAPIKey() string {
	return c.viper.GetString("openai.api_key")
}

func (c *Configuration) GetOpenAIBaseURL() string {
	return c.viper.GetString("openai.base_url")
}

func (c *Configuration) GetOpenAIChatModel() string {
	return c.viper.GetString("openai.chat_model")
}

func (c *Configuration) GetOpenAITTSModel() string {
	return c.viper.GetString("openai.tts_model")
}

func (c *Configuration) GetOpenAITranscriptionModel() string {
	return c.viper.GetString("openai.transcription_model")
}

// GetDebugMode reports whether verbose pipeline logging is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("app.debug")
}

func (c *Configuration) GetHealthFile() string {
	return c.viper.GetString("app.health_file")
}

func (c *Configuration) GetHeartbeatInterval() time.Duration {
	d := c.seconds("app.heartbeat_sec")
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
