package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage is the position of a run in the dubbing state machine
type Stage int

const (
	StageUploaded Stage = iota
	StageAudioExtracted
	StageTranscribed
	StageTranslated
	StageSynthesized
	StageMerged
	StageFailed
)

var stageNames = map[Stage]string{
	StageUploaded:       "uploaded",
	StageAudioExtracted: "audio_extracted",
	StageTranscribed:    "transcribed",
	StageTranslated:     "translated",
	StageSynthesized:    "synthesized",
	StageMerged:         "merged",
	StageFailed:         "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s Stage) Terminal() bool {
	return s == StageMerged || s == StageFailed
}

// ErrInvalidTransition is returned for any jump the state machine does not allow
var ErrInvalidTransition = errors.New("invalid stage transition")

// Transition returns the stage after moving from -> to. Stages only advance
// one step at a time, and any non-terminal stage may fail.
func Transition(from, to Stage) (Stage, error) {
	if from.Terminal() {
		return from, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StageFailed || to == from+1 {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Artifacts are the files a run leaves behind; failed runs keep them for inspection
type Artifacts struct {
	Video       string `json:"video"`
	Audio       string `json:"audio,omitempty"`
	Transcript  string `json:"transcript,omitempty"`
	DubbedAudio string `json:"dubbed_audio,omitempty"`
	Output      string `json:"output,omitempty"`
}

// Run is the state of one upload moving through the pipeline
type Run struct {
	ID        string
	Stage     Stage
	Progress  int
	Artifacts Artifacts
	StartedAt time.Time
}

// NewRun creates a run for an uploaded video
func NewRun(videoPath string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Stage:     StageUploaded,
		Artifacts: Artifacts{Video: videoPath},
		StartedAt: time.Now(),
	}
}

// Advance moves the run to the given stage
func (r *Run) Advance(to Stage) error {
	next, err := Transition(r.Stage, to)
	if err != nil {
		return err
	}
	r.Stage = next
	return nil
}

// Fail moves the run to StageFailed
func (r *Run) Fail() error {
	return r.Advance(StageFailed)
}

// ShortID is the prefix used to namespace output file names
func (r *Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}
