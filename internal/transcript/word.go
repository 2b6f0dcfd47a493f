// Package transcript provides the word alignment model produced by speech-to-text
// and the pure transforms applied to it before an infill trial: whitespace
// normalization and left/middle/right segment boundary computation.
package transcript

import "strings"

// Word is a single transcribed token with its timing in seconds.
// Text keeps any leading whitespace captured by the transcriber.
type Word struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the offset in seconds where the word's audio ends.
func (w Word) End() float64 {
	return w.Start + w.Duration
}

// IsBlank reports whether the word carries only whitespace.
func (w Word) IsBlank() bool {
	return strings.TrimSpace(w.Text) == ""
}

// Sequence is the ordered word alignment of one recording.
type Sequence []Word

// Text concatenates the text of every word in order.
func (s Sequence) Text() string {
	var b strings.Builder
	for _, w := range s {
		b.WriteString(w.Text)
	}
	return b.String()
}

// TotalDuration sums the duration of every word.
func (s Sequence) TotalDuration() float64 {
	var total float64
	for _, w := range s {
		total += w.Duration
	}
	return total
}

// TranscribeOptions are the speech-to-text settings used to produce a Sequence.
type TranscribeOptions struct {
	Model       string
	Language    string
	Granularity string
}
