package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"videodubber/internal/audio"
	"videodubber/internal/synth"
)

// DefaultGapThreshold is the largest gap treated as measurement noise
const DefaultGapThreshold = 20 * time.Millisecond

// Synthesizer produces exact-length clips for single segments
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*audio.Clip, error)
}

// Options configures one assembly
type Options struct {
	Voice        string
	SampleRate   int
	GapThreshold time.Duration
	Concurrency  int
	// OnSegment is called after each segment is folded, in segment order
	OnSegment func(done, total int)
}

// Assembler rebuilds a track whose segment timing reproduces the original
type Assembler struct {
	logger *zap.Logger
	synth  Synthesizer
	opts   Options
}

// NewAssembler creates a new Assembler instance
func NewAssembler(logger *zap.Logger, s Synthesizer, opts Options) *Assembler {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.DefaultSampleRate
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = DefaultGapThreshold
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Assembler{
		logger: logger.With(zap.String("component", "timeline")),
		synth:  s,
		opts:   opts,
	}
}

// Assemble validates all segments, synthesizes them (possibly concurrently) and
// folds the clips back in segment order. Zero segments yield an empty track.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment) (*audio.Clip, error) {
	slots, total, err := plan(segments, a.opts.GapThreshold)
	if err != nil {
		return nil, err
	}

	f := &folder{
		track:     audio.NewClip(a.opts.SampleRate),
		slots:     slots,
		results:   make([]*audio.Clip, len(slots)),
		onSegment: a.opts.OnSegment,
	}

	p := pool.New().
		WithMaxGoroutines(a.opts.Concurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i := range segments {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			clip, err := a.synth.Synthesize(ctx, synth.Request{
				Index:  i,
				Text:   segments[i].Text,
				Voice:  a.opts.Voice,
				Target: slots[i].target,
			})
			if err != nil {
				return err
			}
			return f.complete(i, clip)
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	// per-piece sample rounding may drift by under a millisecond per segment
	tolerance := time.Duration(len(segments)) * time.Millisecond
	if drift := f.track.Duration() - total; drift > tolerance || drift < -tolerance {
		return nil, fmt.Errorf("assembled track is %v, expected %v", f.track.Duration(), total)
	}

	a.logger.Info("timeline assembled",
		zap.Int("segments", len(segments)),
		zap.Duration("duration", total))

	return f.track, nil
}

// AssembleToFile assembles and writes the finished track once as WAV
func (a *Assembler) AssembleToFile(ctx context.Context, segments []Segment, outPath string) (*audio.Clip, error) {
	track, err := a.Assemble(ctx, segments)
	if err != nil {
		return nil, err
	}
	if err := audio.WriteWAV(outPath, track); err != nil {
		return nil, fmt.Errorf("write assembled track: %w", err)
	}
	return track, nil
}

// folder appends completed clips in index order as soon as their predecessors are in
type folder struct {
	mu        sync.Mutex
	track     *audio.Clip
	slots     []slot
	results   []*audio.Clip
	next      int
	onSegment func(done, total int)
}

func (f *folder) complete(i int, clip *audio.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if clip == nil {
		return fmt.Errorf("segment %d: synthesizer returned no audio", i)
	}
	clip.FitTo(f.slots[i].target)
	f.results[i] = clip

	for f.next < len(f.results) && f.results[f.next] != nil {
		s := f.slots[f.next]
		f.track.AppendSilence(s.silence)
		if err := f.track.Append(f.results[f.next]); err != nil {
			return fmt.Errorf("segment %d: %w", f.next, err)
		}
		f.results[f.next] = nil
		f.next++
		if f.onSegment != nil {
			f.onSegment(f.next, len(f.results))
		}
	}
	return nil
}
