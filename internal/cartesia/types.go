// Package cartesia provides an HTTP client for the hosted speech provider used by
// the harness: speech-to-text with word timestamps, voice cloning, and infill
// synthesis.
package cartesia

import (
	"io"

	"github.com/maauso/infill-eval/internal/transcript"
)

// OutputFormat selects the container, encoding and sample rate of synthesized audio.
type OutputFormat struct {
	Container  string // "wav", "raw" or "mp3"
	Encoding   string // e.g. "pcm_s16le", "pcm_f32le"
	SampleRate int
	BitRate    int // mp3 only
}

// DefaultOutputFormat returns 16-bit PCM WAV at 44.1kHz.
func DefaultOutputFormat() OutputFormat {
	return OutputFormat{
		Container:  "wav",
		Encoding:   "pcm_s16le",
		SampleRate: 44100,
	}
}

// Ext returns the file extension for the container, including the dot.
func (f OutputFormat) Ext() string {
	switch f.Container {
	case "", "wav":
		return ".wav"
	case "raw":
		return ".pcm"
	default:
		return "." + f.Container
	}
}

// CloneOptions describe the voice created from a sample recording.
type CloneOptions struct {
	Name        string
	Description string
	Language    string
	// Filename is sent as the multipart filename of the sample (default "sample.wav").
	Filename string
}

// InfillRequest asks for audio bridging Left and Right that speaks Transcript.
type InfillRequest struct {
	Left       io.Reader
	Right      io.Reader
	Transcript string
	VoiceID    string
	ModelID    string
	Language   string
	Format     OutputFormat
	// ContextExt is the extension of the Left and Right uploads (default ".wav").
	// It describes the context clips, not the requested output.
	ContextExt string
}

// sttResponse is the body returned by POST /stt.
type sttResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Words    []sttWord `json:"words"`
}

// sttWord accepts both the "word" and "text" spellings, and either an explicit
// duration or an end offset.
type sttWord struct {
	Word     string   `json:"word,omitempty"`
	Text     string   `json:"text,omitempty"`
	Start    float64  `json:"start"`
	End      *float64 `json:"end,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

func (w sttWord) toWord() transcript.Word {
	text := w.Word
	if text == "" {
		text = w.Text
	}

	var d float64
	switch {
	case w.Duration != nil:
		d = *w.Duration
	case w.End != nil:
		d = *w.End - w.Start
	}
	if d < 0 {
		d = 0
	}

	start := w.Start
	if start < 0 {
		start = 0
	}

	return transcript.Word{Text: text, Start: start, Duration: d}
}

// cloneResponse is the body returned by POST /voices/clone.
type cloneResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
}
