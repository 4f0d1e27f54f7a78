package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"videodubber/internal/events"
	"videodubber/internal/logger"
	"videodubber/internal/performance"
	"videodubber/internal/synth"
	"videodubber/internal/timeline"
	"videodubber/internal/transcriber"
	"videodubber/internal/translate"
	"videodubber/internal/tts"
)

// Media probes, extracts and remuxes video files
type Media interface {
	Duration(ctx context.Context, videoPath string) (time.Duration, error)
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outPath string) error
}

// TranscriptStore persists a run's transcription
type TranscriptStore interface {
	Save(sourceFile string, t *transcriber.Transcription) (string, error)
}

// Options configures an Orchestrator
type Options struct {
	TempDir            string
	OutputDir          string
	MaxDuration        time.Duration
	SegmentConcurrency int
	SampleRate         int
	GapThreshold       time.Duration

	ProbeTimeout      time.Duration
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	TranslateTimeout  time.Duration
	MuxTimeout        time.Duration

	// Capacity is shared with the synthesizer so all runs draw from one budget
	Capacity synth.Limiter
	Monitor  *performance.CallMonitor
}

// Request is one uploaded video to dub
type Request struct {
	VideoPath      string
	OriginalName   string
	TargetLanguage string
	Voice          string
}

// Result describes a finished run
type Result struct {
	RunID            string
	OutputPath       string
	TranslatedVideo  string
	OriginalLanguage string
	TargetLanguage   string
	Voice            string
	Transcription    *transcriber.Transcription
	Segments         []timeline.Segment
	Artifacts        Artifacts
	Elapsed          time.Duration
}

// FullTranslatedText joins the translated segments
func (r *Result) FullTranslatedText() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Stats counts runs across the lifetime of an Orchestrator
type Stats struct {
	Active    int64 `json:"active_runs"`
	Completed int64 `json:"completed_runs"`
	Failed    int64 `json:"failed_runs"`
}

// Orchestrator drives uploads through extract, transcribe, translate,
// synthesize and merge. Runs share nothing but the collaborator capacity.
type Orchestrator struct {
	logger      *zap.Logger
	media       Media
	recognizer  transcriber.Recognizer
	translator  translate.Translator
	synth       timeline.Synthesizer
	voices      *tts.VoiceTable
	transcripts TranscriptStore
	opts        Options

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(
	log *zap.Logger,
	media Media,
	recognizer transcriber.Recognizer,
	translator translate.Translator,
	synthesizer timeline.Synthesizer,
	voices *tts.VoiceTable,
	transcripts TranscriptStore,
	opts Options,
) *Orchestrator {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}
	if opts.SegmentConcurrency < 1 {
		opts.SegmentConcurrency = 1
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = timeline.DefaultGapThreshold
	}
	if voices == nil {
		voices = tts.NewVoiceTable(tts.DefaultFallbackVoice)
	}
	return &Orchestrator{
		logger:      log,
		media:       media,
		recognizer:  recognizer,
		translator:  translator,
		synth:       synthesizer,
		voices:      voices,
		transcripts: transcripts,
		opts:        opts,
	}
}

// Stats returns a snapshot of the run counters
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Active:    o.active.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
	}
}

// Process runs one upload to completion, reporting progress as it goes.
// The returned error is always a *Error.
func (o *Orchestrator) Process(ctx context.Context, req Request, reporter events.Reporter) (*Result, error) {
	if reporter == nil {
		reporter = events.Discard{}
	}
	run := NewRun(req.VideoPath)
	log := logger.ForRun(o.logger, "pipeline", run.ID)

	o.active.Add(1)
	defer o.active.Add(-1)

	log.Info("run started",
		zap.String("video", req.VideoPath),
		zap.String("target_language", req.TargetLanguage))

	p := &progress{run: run, reporter: reporter}
	result, err := o.process(ctx, run, req, p, log)
	if err != nil {
		if ferr := run.Fail(); ferr != nil {
			log.Warn("run was already terminal", zap.Error(ferr))
		}
		o.failed.Add(1)
		log.Error("run failed",
			zap.String("kind", err.Kind.String()),
			zap.String("stage", err.Stage),
			zap.Int("progress", run.Progress),
			zap.Any("artifacts", run.Artifacts),
			zap.Error(err.Cause))
		return nil, err
	}

	o.completed.Add(1)
	log.Info("run completed",
		zap.String("output", result.OutputPath),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

// ProcessStream runs Process and closes the stream with its terminal event
func (o *Orchestrator) ProcessStream(ctx context.Context, req Request, stream *events.Stream) (*Result, error) {
	result, err := o.Process(ctx, req, stream)
	if err != nil {
		stream.Fail(err.Error())
		return nil, err
	}
	stream.Complete(events.Complete{
		TranslatedVideo:  result.TranslatedVideo,
		OriginalLanguage: result.OriginalLanguage,
		TargetLanguage:   result.TargetLanguage,
	})
	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, run *Run, req Request, p *progress, log *zap.Logger) (*Result, *Error) {
	fail := func(stage string, err error) *Error {
		return classify(ctx, stage, err)
	}

	runDir := filepath.Join(o.opts.TempDir, run.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fail("upload", fmt.Errorf("failed to create run directory: %w", err))
	}
	if err := os.MkdirAll(o.opts.OutputDir, 0755); err != nil {
		return nil, fail("upload", fmt.Errorf("failed to create output directory: %w", err))
	}

	// The ceiling is checked before any progress is reported
	var duration time.Duration
	err := o.call(ctx, "ffprobe", o.opts.ProbeTimeout, func(ctx context.Context) error {
		d, err := o.media.Duration(ctx, req.VideoPath)
		duration = d
		return err
	})
	if err != nil {
		return nil, fail("upload", err)
	}
	if duration > o.opts.MaxDuration {
		return nil, &Error{
			Kind:  KindDurationExceeded,
			Stage: "upload",
			Cause: fmt.Errorf("video duration %s exceeds the %s limit", duration.Round(time.Millisecond), o.opts.MaxDuration),
		}
	}
	p.report("upload", "Video uploaded successfully", 10)

	// Extract
	p.report("extract_audio", "Extracting audio from video...", 20)
	audioPath := filepath.Join(runDir, "original_audio.wav")
	err = o.call(ctx, "ffmpeg_extract", o.opts.ExtractTimeout, func(ctx context.Context) error {
		return o.media.ExtractAudio(ctx, req.VideoPath, audioPath)
	})
	if err != nil {
		return nil, fail("extract_audio", err)
	}
	run.Artifacts.Audio = audioPath
	if err := run.Advance(StageAudioExtracted); err != nil {
		return nil, fail("extract_audio", err)
	}
	p.report("extract_audio", "Audio extracted successfully", 30)

	// Transcribe
	p.report("transcribe", "Transcribing audio...", 40)
	var tr *transcriber.Transcription
	err = o.call(ctx, "recognizer", o.opts.TranscribeTimeout, func(ctx context.Context) error {
		t, err := o.recognizer.Transcribe(ctx, audioPath)
		tr = t
		return err
	})
	if err == nil {
		err = tr.Validate()
	}
	if err != nil {
		return nil, fail("transcribe", err)
	}

	segments := toSegments(tr)
	if err := timeline.Validate(segments, o.opts.GapThreshold); err != nil {
		return nil, fail("transcribe", err)
	}

	if o.transcripts != nil {
		source := req.OriginalName
		if source == "" {
			source = req.VideoPath
		}
		if path, err := o.transcripts.Save(source, tr); err != nil {
			log.Warn("failed to save transcription", zap.Error(err))
		} else {
			run.Artifacts.Transcript = path
		}
	}
	if err := run.Advance(StageTranscribed); err != nil {
		return nil, fail("transcribe", err)
	}
	p.report("transcribe", fmt.Sprintf("Transcription complete. Found %d segments.", len(segments)), 50)

	// Translate
	sourceLang := transcriber.NormalizeLanguage(tr.Language)
	targetLang := transcriber.NormalizeLanguage(req.TargetLanguage)
	if sourceLang == targetLang {
		return nil, &Error{Kind: KindSameLanguage, Stage: "translate", Cause: ErrSameLanguage}
	}

	p.report("translate", "Translating segments...", 55)
	translated, err := o.translateAll(ctx, segments, sourceLang, targetLang, func(done, total int) {
		p.report("translate", fmt.Sprintf("Translated %d/%d segments", done, total), 55+done*19/total)
	})
	if err != nil {
		return nil, fail("translate", err)
	}
	if err := run.Advance(StageTranslated); err != nil {
		return nil, fail("translate", err)
	}

	// Synthesize
	p.report("tts", "Generating speech...", 75)
	voice := o.voices.Resolve(req.Voice, targetLang)
	assembler := timeline.NewAssembler(log, o.synth, timeline.Options{
		Voice:        voice,
		SampleRate:   o.opts.SampleRate,
		GapThreshold: o.opts.GapThreshold,
		Concurrency:  o.opts.SegmentConcurrency,
		OnSegment: func(done, total int) {
			p.report("tts", fmt.Sprintf("Synthesized %d/%d segments", done, total), 75+done*9/total)
		},
	})
	dubbedPath := filepath.Join(runDir, "final_dubbed_audio.wav")
	if _, err := assembler.AssembleToFile(ctx, translated, dubbedPath); err != nil {
		return nil, fail("tts", err)
	}
	run.Artifacts.DubbedAudio = dubbedPath
	if err := run.Advance(StageSynthesized); err != nil {
		return nil, fail("tts", err)
	}
	p.report("tts", "Speech generation complete", 85)

	// Merge
	p.report("merge", "Merging audio with video...", 90)
	outputName := fmt.Sprintf("dubbed_%s_%s", run.ShortID(), outputBaseName(req))
	outputPath := filepath.Join(o.opts.OutputDir, outputName)
	err = o.call(ctx, "ffmpeg_mux", o.opts.MuxTimeout, func(ctx context.Context) error {
		return o.media.ReplaceAudio(ctx, req.VideoPath, dubbedPath, outputPath)
	})
	if err != nil {
		return nil, fail("merge", err)
	}
	run.Artifacts.Output = outputPath
	if err := run.Advance(StageMerged); err != nil {
		return nil, fail("merge", err)
	}
	p.report("merge", "Video processing complete", 95)

	return &Result{
		RunID:            run.ID,
		OutputPath:       outputPath,
		TranslatedVideo:  "/" + outputName,
		OriginalLanguage: sourceLang,
		TargetLanguage:   targetLang,
		Voice:            voice,
		Transcription:    tr,
		Segments:         translated,
		Artifacts:        run.Artifacts,
		Elapsed:          time.Since(run.StartedAt),
	}, nil
}

// translateAll translates every non-blank segment, keeping results at their
// segment index regardless of completion order
func (o *Orchestrator) translateAll(ctx context.Context, segments []timeline.Segment, source, target string, onDone func(done, total int)) ([]timeline.Segment, error) {
	out := make([]timeline.Segment, len(segments))
	copy(out, segments)

	var mu sync.Mutex
	done := 0

	p := pool.New().
		WithMaxGoroutines(o.opts.SegmentConcurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i := range segments {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text := strings.TrimSpace(segments[i].Text)
			if text != "" {
				var translated string
				err := o.limited(ctx, func() error {
					return o.call(ctx, "translator", o.opts.TranslateTimeout, func(ctx context.Context) error {
						t, err := o.translator.Translate(ctx, text, source, target)
						translated = t
						return err
					})
				})
				if err != nil {
					return fmt.Errorf("segment %d: %w", i, err)
				}
				text = strings.TrimSpace(translated)
			}
			out[i].Text = text

			mu.Lock()
			done++
			onDone(done, len(segments))
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) limited(ctx context.Context, fn func() error) error {
	if o.opts.Capacity == nil {
		return fn()
	}
	if err := o.opts.Capacity.Acquire(ctx); err != nil {
		return err
	}
	defer o.opts.Capacity.Release()
	return fn()
}

// call gives one collaborator call its own timeout and records it
func (o *Orchestrator) call(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return o.opts.Monitor.Track(name, func() error {
		return fn(ctx)
	})
}

func toSegments(tr *transcriber.Transcription) []timeline.Segment {
	segments := make([]timeline.Segment, len(tr.Segments))
	for i, s := range tr.Segments {
		segments[i] = timeline.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)}
	}
	return segments
}

func outputBaseName(req Request) string {
	name := req.OriginalName
	if name == "" {
		name = req.VideoPath
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "video.mp4"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// progress keeps a run's percentage monotonic across concurrent reporters
type progress struct {
	mu       sync.Mutex
	run      *Run
	reporter events.Reporter
}

func (p *progress) report(stage, message string, percent int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if percent <= p.run.Progress {
		return
	}
	p.run.Progress = percent
	p.reporter.Progress(stage, message, percent)
}
