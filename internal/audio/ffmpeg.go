// Package audio normalizes uploaded clips into the waveform the speech
// engine expects: mono, 16 kHz, 16-bit PCM WAV, at most MaxDuration long.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	SampleRate  = 16000
	Channels    = 1
	BitDepth    = 16
	MaxDuration = 30 * time.Second
)

// DecodeError carries the decoder's own diagnostic with temp paths scrubbed.
type DecodeError struct {
	Diagnostic string
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("ffmpeg: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v: %s", e.Err, e.Diagnostic)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type FFmpeg struct {
	bin         string
	maxDuration time.Duration
	timeout     time.Duration
}

func NewFFmpeg(bin string, maxDuration, timeout time.Duration) *FFmpeg {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "ffmpeg"
	}
	if maxDuration <= 0 {
		maxDuration = MaxDuration
	}
	return &FFmpeg{bin: bin, maxDuration: maxDuration, timeout: timeout}
}

// Check resolves the ffmpeg binary on PATH.
func (f *FFmpeg) Check() error {
	if _, err := exec.LookPath(f.bin); err != nil {
		return fmt.Errorf("looking for `%s`: %w", f.bin, err)
	}
	return nil
}

// Decode converts inPath to a normalized waveform at outPath, overwriting it.
func (f *FFmpeg) Decode(ctx context.Context, inPath, outPath string) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.bin, f.args(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return &DecodeError{
			Diagnostic: scrubPaths(lastLines(stderr.String(), 3), inPath, outPath),
			Err:        err,
		}
	}
	return nil
}

func (f *FFmpeg) args(inPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-t", strconv.FormatFloat(f.maxDuration.Seconds(), 'f', -1, 64),
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		outPath,
	}
}

func scrubPaths(s string, paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		s = strings.ReplaceAll(s, p, filepath.Ext(p)+" file")
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
