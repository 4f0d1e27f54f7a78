package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videodubber/internal/audio"
	"videodubber/internal/config"
)

const testSampleRate = 8000

// fakeTools holds paths to shell scripts standing in for the external binaries
type fakeTools struct {
	ffmpeg  string
	ffprobe string
	whisper string
	edgeTTS string
	model   string
	fixture string
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// newFakeTools builds fakes reporting a 12 second video with speech at
// 0-4s and 8-12s and a silent span between
func newFakeTools(t *testing.T) *fakeTools {
	t.Helper()
	dir := t.TempDir()

	fixture := filepath.Join(dir, "tone.wav")
	clip := audio.NewSilence(time.Second, testSampleRate)
	for i := range clip.Samples {
		clip.Samples[i] = 1200
	}
	require.NoError(t, audio.WriteWAV(fixture, clip))

	model := filepath.Join(dir, "ggml-base.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0644))

	return &fakeTools{
		// every ffmpeg operation writes the fixture to its output path, the last argument
		ffmpeg:  writeScript(t, dir, "ffmpeg", `for last; do :; done; cp "`+fixture+`" "$last"`),
		ffprobe: writeScript(t, dir, "ffprobe", `echo '{"format":{"duration":"12.000000"}}'`),
		whisper: writeScript(t, dir, "whisper-cli", `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
cat > "$out.json" <<'JSON'
{"result":{"language":"english"},"transcription":[
 {"offsets":{"from":0,"to":4000},"text":" Hello there"},
 {"offsets":{"from":4000,"to":8000},"text":" "},
 {"offsets":{"from":8000,"to":12000},"text":" Goodbye"}]}
JSON`),
		edgeTTS: writeScript(t, dir, "edge-tts", `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--write-media" ]; then out="$2"; fi
  shift
done
printf 'ID3' > "$out"`),
		model:   model,
		fixture: fixture,
	}
}

// newMyMemoryServer answers every translation request with a fixed text
func newMyMemoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responseData":{"translatedText":"Privet"},"matches":[{"translation":"Privet"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestConfig points every directory, binary and endpoint at test fixtures
func newTestConfig(t *testing.T, tools *fakeTools, translatorURL string) *config.Configuration {
	t.Helper()
	root := t.TempDir()

	cfg := config.NewConfiguration()
	cfg.Set("server.address", "127.0.0.1:0")
	cfg.Set("storage.upload_dir", filepath.Join(root, "uploads"))
	cfg.Set("storage.temp_dir", filepath.Join(root, "temp"))
	cfg.Set("storage.output_dir", filepath.Join(root, "outputs"))
	cfg.Set("storage.samples_dir", "")
	cfg.Set("pipeline.sample_rate", testSampleRate)
	cfg.Set("app.health_file", filepath.Join(root, "health.json"))
	cfg.Set("transcriber.models_dir", filepath.Dir(tools.model))
	cfg.Set("transcriber.model_path", tools.model)
	cfg.Set("transcriber.binary_path", tools.whisper)
	cfg.Set("ffmpeg.path", tools.ffmpeg)
	cfg.Set("ffmpeg.probe_path", tools.ffprobe)
	cfg.Set("tts.binary_path", tools.edgeTTS)
	cfg.Set("translator.mymemory_url", translatorURL)
	cfg.Set("translator.retry_backoff_ms", 1)
	return cfg
}
