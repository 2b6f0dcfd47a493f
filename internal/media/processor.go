// Package media wraps the external ffmpeg tool used to cut, fade and join the
// audio segments of an infill trial.
package media

import "context"

// EncodeOpts fixes the sample rate, channel count and codec of an output file.
type EncodeOpts struct {
	SampleRate int    // Hz, e.g. 44100
	Channels   int    // 1 for mono
	Codec      string // ffmpeg audio codec, e.g. "pcm_s16le"
}

// DefaultEncodeOpts returns mono 16-bit PCM at 44.1kHz.
func DefaultEncodeOpts() EncodeOpts {
	return EncodeOpts{SampleRate: 44100, Channels: 1, Codec: "pcm_s16le"}
}

// FadeOpts configures fade-in and fade-out lengths in seconds. Zero disables a side.
type FadeOpts struct {
	In  float64
	Out float64
}

// JoinMode selects how consecutive files are joined.
type JoinMode string

const (
	// JoinConcat places files back to back.
	JoinConcat JoinMode = "concat"
	// JoinCrossfade overlaps each boundary by JoinOpts.CrossfadeSec.
	JoinCrossfade JoinMode = "crossfade"
)

// IsValid returns true if the join mode is known.
func (m JoinMode) IsValid() bool {
	return m == JoinConcat || m == JoinCrossfade
}

// JoinOpts configures Processor.Join.
type JoinOpts struct {
	Mode         JoinMode
	CrossfadeSec float64
	Encode       EncodeOpts
}

// Processor defines the audio operations the evaluation driver needs.
type Processor interface {
	// Trim copies the [start, end) range of src into dst, re-encoded with opts.
	Trim(ctx context.Context, src, dst string, start, end float64, opts EncodeOpts) error

	// Convert re-encodes the whole of src into dst with opts.
	Convert(ctx context.Context, src, dst string, opts EncodeOpts) error

	// Fade writes src to dst with the given fade-in and fade-out applied.
	Fade(ctx context.Context, src, dst string, opts FadeOpts) error

	// Join concatenates or crossfades paths, in order, into dst.
	Join(ctx context.Context, paths []string, dst string, opts JoinOpts) error

	// GetMediaDuration returns the duration of a media file in seconds.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
