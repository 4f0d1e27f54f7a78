package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"videodubber/internal/audio"
	"videodubber/internal/performance"
	"videodubber/internal/tts"
)

// AudioTools decodes and time-stretches audio files
type AudioTools interface {
	Decode(ctx context.Context, inPath, outPath string, sampleRate int) error
	Stretch(ctx context.Context, inPath, outPath string, factors []float64) error
}

// Limiter bounds concurrent calls to the voice engine across runs
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// Request describes one segment to synthesize
type Request struct {
	Index  int
	Text   string
	Voice  string
	Target time.Duration
}

// SynthesisFailure reports which segment failed and why
type SynthesisFailure struct {
	Index int
	Cause error
}

func (e *SynthesisFailure) Error() string {
	return fmt.Sprintf("synthesis failed for segment %d: %v", e.Index, e.Cause)
}

func (e *SynthesisFailure) Unwrap() error {
	return e.Cause
}

// Options configures a Synthesizer
type Options struct {
	TempDir        string
	SampleRate     int
	MinSpeech      time.Duration
	EngineTimeout  time.Duration
	StretchTimeout time.Duration
	Limiter        Limiter
	Monitor        *performance.CallMonitor
}

// Synthesizer produces speech clips of an exact target duration
type Synthesizer struct {
	logger *zap.Logger
	engine tts.Engine
	tools  AudioTools
	opts   Options
}

// NewSynthesizer creates a new Synthesizer instance
func NewSynthesizer(logger *zap.Logger, engine tts.Engine, tools AudioTools, opts Options) *Synthesizer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}
	if opts.MinSpeech <= 0 {
		opts.MinSpeech = 50 * time.Millisecond
	}
	return &Synthesizer{
		logger: logger.With(zap.String("component", "synth")),
		engine: engine,
		tools:  tools,
		opts:   opts,
	}
}

// SampleRate returns the rate of every clip this synthesizer produces
func (s *Synthesizer) SampleRate() int {
	return s.opts.SampleRate
}

// Synthesize returns a clip exactly req.Target long. Blank text and zero targets
// never reach the engine.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (clip *audio.Clip, err error) {
	if req.Target <= 0 {
		return audio.NewClip(s.opts.SampleRate), nil
	}
	if strings.TrimSpace(req.Text) == "" {
		return audio.NewSilence(req.Target, s.opts.SampleRate), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &SynthesisFailure{Index: req.Index, Cause: err}
	}

	dir, err := newScratchDir(s.opts.TempDir, req.Index)
	if err != nil {
		return nil, &SynthesisFailure{Index: req.Index, Cause: err}
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			s.logger.Warn("failed to release segment scratch dir",
				zap.Int("segment", req.Index), zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
	}()

	clip, err = s.synthesize(ctx, req, dir)
	if err != nil {
		return nil, &SynthesisFailure{Index: req.Index, Cause: err}
	}
	return clip, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, req Request, dir *scratchDir) (*audio.Clip, error) {
	rawPath := dir.File("speech.tts")
	if err := s.callEngine(ctx, req, rawPath); err != nil {
		return nil, err
	}

	naturalPath := dir.File("natural.wav")
	if err := s.tools.Decode(ctx, rawPath, naturalPath, s.opts.SampleRate); err != nil {
		return nil, fmt.Errorf("decode synthesized speech: %w", err)
	}
	natural, err := audio.ReadWAV(naturalPath, s.opts.SampleRate)
	if err != nil {
		return nil, err
	}

	rawDuration := natural.Duration()
	if rawDuration < s.opts.MinSpeech {
		s.logger.Debug("synthesized audio too short, using silence",
			zap.Int("segment", req.Index),
			zap.Duration("raw", rawDuration))
		return audio.NewSilence(req.Target, s.opts.SampleRate), nil
	}

	speed := rawDuration.Seconds() / req.Target.Seconds()
	factors, err := audio.TempoChain(speed)
	if err != nil {
		return nil, err
	}

	stretchedPath := dir.File("stretched.wav")
	err = s.withTimeout(ctx, s.opts.StretchTimeout, "ffmpeg_stretch", func(ctx context.Context) error {
		return s.tools.Stretch(ctx, naturalPath, stretchedPath, factors)
	})
	if err != nil {
		return nil, fmt.Errorf("stretch speech: %w", err)
	}

	stretched, err := audio.ReadWAV(stretchedPath, s.opts.SampleRate)
	if err != nil {
		return nil, err
	}
	stretched.FitTo(req.Target)

	s.logger.Debug("segment synthesized",
		zap.Int("segment", req.Index),
		zap.Duration("raw", rawDuration),
		zap.Duration("target", req.Target),
		zap.Float64s("atempo", factors))

	return stretched, nil
}

func (s *Synthesizer) callEngine(ctx context.Context, req Request, outPath string) error {
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Acquire(ctx); err != nil {
			return err
		}
		defer s.opts.Limiter.Release()
	}
	return s.withTimeout(ctx, s.opts.EngineTimeout, "tts_engine", func(ctx context.Context) error {
		return s.engine.Synthesize(ctx, req.Text, req.Voice, outPath)
	})
}

func (s *Synthesizer) withTimeout(ctx context.Context, timeout time.Duration, name string, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.opts.Monitor.Track(name, func() error { return fn(ctx) })
}

// scratchDir is a per-segment temp directory removed by Close
type scratchDir struct {
	path string
}

func newScratchDir(root string, index int) (*scratchDir, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, fmt.Errorf("create temp root: %w", err)
		}
	}
	path, err := os.MkdirTemp(root, fmt.Sprintf("segment-%04d-*", index))
	if err != nil {
		return nil, fmt.Errorf("create segment scratch dir: %w", err)
	}
	return &scratchDir{path: path}, nil
}

func (d *scratchDir) File(name string) string {
	return filepath.Join(d.path, name)
}

func (d *scratchDir) Close() error {
	return os.RemoveAll(d.path)
}
