package transcriber

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// JSONOutput persists transcriptions next to the dubbed outputs
type JSONOutput struct {
	dir    string
	logger *zap.Logger
}

// NewJSONOutput creates a new JSONOutput instance
func NewJSONOutput(dir string, logger *zap.Logger) *JSONOutput {
	return &JSONOutput{
		dir:    dir,
		logger: logger.With(zap.String("component", "transcriber")),
	}
}

type savedTranscription struct {
	SourceFile string `json:"source_file"`
	Text       string `json:"text"`
	*Transcription
}

// Save writes <name>_transcription.json for the given source file and returns its path
func (jo *JSONOutput) Save(sourceFile string, t *Transcription) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("invalid transcription: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	path := filepath.Join(jo.dir, name+"_transcription.json")

	data, err := json.MarshalIndent(savedTranscription{
		SourceFile:    filepath.Base(sourceFile),
		Text:          t.Text(),
		Transcription: t,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcription: %w", err)
	}

	if err := os.MkdirAll(jo.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write transcription: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to move transcription into place: %w", err)
	}

	jo.logger.Debug("saved transcription",
		zap.String("path", path),
		zap.Int("segments", len(t.Segments)))

	return path, nil
}
