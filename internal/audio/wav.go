// Package audio inspects synthesized clips before they are joined.
package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a readable RIFF/WAVE file.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// Info describes the PCM layout of a WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Seconds returns the duration in seconds.
func (i Info) Seconds() float64 {
	return i.Duration.Seconds()
}

// Inspect reads the header of the WAV file at path. The duration is derived
// from the size of the data chunk.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path) // #nosec G304 - path is produced by the driver
	if err != nil {
		return Info{}, fmt.Errorf("open wav: %w", err)
	}
	defer func() { _ = f.Close() }()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrInvalidWAV, path, err)
	}

	frameSize := int(d.NumChans) * int(d.BitDepth) / 8
	if d.SampleRate == 0 || frameSize == 0 {
		return Info{}, fmt.Errorf("%w: %s: empty format chunk", ErrInvalidWAV, path)
	}
	frames := d.PCMSize / frameSize

	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Duration:   time.Duration(frames) * time.Second / time.Duration(d.SampleRate),
	}, nil
}
