package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-audio/wav"
)

var ErrMissingOutput = errors.New("decoded waveform not found")

type Waveform struct {
	Path       string
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Verify confirms the decoder left a normalized WAV file at path.
func Verify(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Waveform{}, ErrMissingOutput
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		return Waveform{}, fmt.Errorf("open waveform: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Waveform{}, errors.New("decoded waveform is not a valid WAV file")
	}

	w := Waveform{
		Path:       path,
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}
	if w.SampleRate != SampleRate || w.Channels != Channels || w.BitDepth != BitDepth {
		return w, fmt.Errorf("decoded waveform is %d Hz/%d ch/%d bit, want %d Hz/%d ch/%d bit",
			w.SampleRate, w.Channels, w.BitDepth, SampleRate, Channels, BitDepth)
	}

	duration, err := decoder.Duration()
	if err != nil {
		return w, fmt.Errorf("read waveform duration: %w", err)
	}
	w.Duration = duration
	return w, nil
}
