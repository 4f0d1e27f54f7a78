package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videodubber/internal/config"
	"videodubber/internal/gpu"
	"videodubber/internal/transcriber"
	"videodubber/internal/translate"
	"videodubber/internal/tts"
)

const gpuDetectTimeout = 5 * time.Second

// newOpenAIClient returns nil when no API key is configured
func newOpenAIClient(cfg *config.Configuration) *openai.Client {
	key := cfg.GetOpenAIAPIKey()
	if key == "" {
		return nil
	}
	clientConfig := openai.DefaultConfig(key)
	if base := cfg.GetOpenAIBaseURL(); base != "" {
		clientConfig.BaseURL = base
	}
	return openai.NewClientWithConfig(clientConfig)
}

func requireOpenAI(client *openai.Client, concern string) error {
	if client == nil {
		return fmt.Errorf("%s backend \"openai\" requires an API key (DUBBER_OPENAI_API_KEY or OPENAI_API_KEY)", concern)
	}
	return nil
}

// newRecognizer builds the configured speech recognizer. whisper.cpp runs on
// the GPU when one is detected.
func newRecognizer(cfg *config.Configuration, logger *zap.Logger, client *openai.Client) (transcriber.Recognizer, gpu.Info, error) {
	switch backend := strings.ToLower(cfg.GetTranscriberBackend()); backend {
	case "whispercpp", "whisper.cpp", "whisper":
		ctx, cancel := context.WithTimeout(context.Background(), gpuDetectTimeout)
		defer cancel()
		info := gpu.NewDetector(logger).Detect(ctx)
		device := gpu.DeviceFor(info, cfg.GetGPUDevice())

		return transcriber.NewWhisperCppRecognizer(logger, transcriber.WhisperCppOptions{
			BinaryPath: cfg.GetWhisperBinaryPath(),
			ModelName:  cfg.GetWhisperModelName(),
			ModelPath:  cfg.GetWhisperModelPath(),
			Downloader: transcriber.NewModelDownloader(logger, cfg.GetWhisperModelsDir()),
			UseGPU:     device >= 0,
			GPUDevice:  device,
		}), info, nil
	case "openai":
		if err := requireOpenAI(client, "transcriber"); err != nil {
			return nil, gpu.Info{}, err
		}
		return transcriber.NewOpenAIRecognizer(logger, client, cfg.GetOpenAITranscriptionModel()), gpu.Info{}, nil
	default:
		return nil, gpu.Info{}, fmt.Errorf("unknown transcriber backend %q", backend)
	}
}

// newTranslator builds the configured translator wrapped in the retry policy
func newTranslator(cfg *config.Configuration, logger *zap.Logger, client *openai.Client) (translate.Translator, error) {
	var base translate.Translator
	switch backend := strings.ToLower(cfg.GetTranslatorBackend()); backend {
	case "mymemory":
		base = translate.NewMyMemoryTranslator(logger, cfg.GetMyMemoryURL())
	case "openai":
		if err := requireOpenAI(client, "translator"); err != nil {
			return nil, err
		}
		base = translate.NewOpenAITranslator(logger, client, cfg.GetOpenAIChatModel())
	default:
		return nil, fmt.Errorf("unknown translator backend %q", backend)
	}
	return translate.NewRetryingTranslator(base, logger, cfg.GetTranslatorMaxAttempts(), cfg.GetTranslatorRetryBackoff()), nil
}

// newVoiceEngine builds the configured voice engine and, when it can list
// voices, the lister backing the voice catalog
func newVoiceEngine(cfg *config.Configuration, logger *zap.Logger, client *openai.Client) (tts.Engine, tts.VoiceLister, error) {
	switch backend := strings.ToLower(cfg.GetTTSBackend()); backend {
	case "edge-tts", "edge":
		engine := tts.NewEdgeTTSEngine(logger, cfg.GetTTSBinaryPath())
		return engine, engine, nil
	case "openai":
		if err := requireOpenAI(client, "tts"); err != nil {
			return nil, nil, err
		}
		return tts.NewOpenAIEngine(logger, client, cfg.GetOpenAITTSModel()), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown tts backend %q", backend)
	}
}
