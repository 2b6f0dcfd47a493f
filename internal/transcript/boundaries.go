package transcript

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientWords is matched by InsufficientWordsError via errors.Is.
	ErrInsufficientWords = errors.New("transcript: not enough words")
	// ErrEmptyMiddle is returned when a window asks for zero middle words.
	ErrEmptyMiddle = errors.New("transcript: middle segment must contain at least one word")
	// ErrInvalidWindow is returned for negative indices or counts.
	ErrInvalidWindow = errors.New("transcript: invalid window")
)

// InsufficientWordsError reports a window that does not fit in the sequence.
type InsufficientWordsError struct {
	Have int
	Need int
}

func (e *InsufficientWordsError) Error() string {
	return fmt.Sprintf("transcript: not enough words: have %d, need %d", e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficientWords) succeed.
func (e *InsufficientWordsError) Is(target error) bool {
	return target == ErrInsufficientWords
}

// Segment is a contiguous slice of a sequence with derived text and time bounds.
// From and To are the half-open index range in the parent sequence.
type Segment struct {
	Words Sequence
	From  int
	To    int
	Text  string
	Start float64
	End   float64
}

// Len returns the number of words in the segment.
func (s Segment) Len() int {
	return s.To - s.From
}

// Duration returns End - Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Boundaries holds the three contiguous segments of one infill window.
type Boundaries struct {
	Left   Segment
	Middle Segment
	Right  Segment
}

// Window describes where a trial sits in a sequence.
type Window struct {
	Start  int
	Left   int
	Middle int
	Right  int
}

// Size returns the number of words the window spans.
func (w Window) Size() int {
	return w.Left + w.Middle + w.Right
}

// Validate checks the window shape and that it fits in n words.
func (w Window) Validate(n int) error {
	if w.Start < 0 || w.Left < 0 || w.Middle < 0 || w.Right < 0 {
		return fmt.Errorf("%w: start=%d left=%d middle=%d right=%d",
			ErrInvalidWindow, w.Start, w.Left, w.Middle, w.Right)
	}
	if w.Middle == 0 {
		return ErrEmptyMiddle
	}
	if need := w.Start + w.Size(); need > n {
		return &InsufficientWordsError{Have: n, Need: need}
	}
	return nil
}

// ComputeBoundaries slices words into left, middle and right segments starting
// at start. Segments are contiguous by index; their time ranges are taken from
// the words and may overlap if the transcriber emitted overlapping timings.
// A window that does not fit is an error, never truncated.
func ComputeBoundaries(words Sequence, start, left, middle, right int) (Boundaries, error) {
	w := Window{Start: start, Left: left, Middle: middle, Right: right}
	if err := w.Validate(len(words)); err != nil {
		return Boundaries{}, err
	}

	leftEnd := start + left
	middleEnd := leftEnd + middle
	rightEnd := middleEnd + right

	b := Boundaries{
		Middle: newSegment(words, leftEnd, middleEnd),
	}
	b.Left = newSegment(words, start, leftEnd)
	b.Right = newSegment(words, middleEnd, rightEnd)

	// Empty context segments collapse onto the middle's edges.
	if b.Left.Len() == 0 {
		b.Left.Start, b.Left.End = b.Middle.Start, b.Middle.Start
	}
	if b.Right.Len() == 0 {
		b.Right.Start, b.Right.End = b.Middle.End, b.Middle.End
	}

	return b, nil
}

func newSegment(words Sequence, from, to int) Segment {
	s := Segment{
		Words: words[from:to:to],
		From:  from,
		To:    to,
	}
	if to > from {
		s.Text = s.Words.Text()
		s.Start = words[from].Start
		s.End = words[to-1].End()
	}
	return s
}

// StartIndices spreads n trial start positions evenly over a sequence of total
// words when each trial needs needed words. The step is
// (total-needed)/n rounded down, so a short sequence yields repeated indices.
func StartIndices(total, needed, n int) ([]int, error) {
	if n < 1 || needed < 0 {
		return nil, fmt.Errorf("%w: trials=%d needed=%d", ErrInvalidWindow, n, needed)
	}
	if total < needed {
		return nil, &InsufficientWordsError{Have: total, Need: needed}
	}

	step := (total - needed) / n
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i * step
	}
	return indices, nil
}
