package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// wavFormatPCM is the RIFF audio format tag for integer PCM
const wavFormatPCM = 1

// ReadWAV decodes a PCM WAV file into a mono clip. Multi-channel input is downmixed.
// When expectedRate is non-zero the file must already be at that rate.
func ReadWAV(path string, expectedRate int) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav %s: %w", path, err)
	}

	rate := int(dec.SampleRate)
	if expectedRate != 0 && rate != expectedRate {
		return nil, fmt.Errorf("wav %s has sample rate %d Hz, expected %d Hz", path, rate, expectedRate)
	}

	channels := int(dec.NumChans)
	if channels <= 1 {
		return &Clip{Samples: buf.Data, SampleRate: rate}, nil
	}

	frames := len(buf.Data) / channels
	mono := make([]int, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		mono[i] = sum / channels
	}
	return &Clip{Samples: mono, SampleRate: rate}, nil
}

// WriteWAV encodes the whole clip as a mono 16-bit PCM WAV file in one pass
func WriteWAV(path string, clip *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, clip.SampleRate, bitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Data:           clip.Samples,
		Format:         &goaudio.Format{SampleRate: clip.SampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	}
	// An empty buffer still emits the RIFF header
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav %s: %w", path, err)
	}
	return nil
}
