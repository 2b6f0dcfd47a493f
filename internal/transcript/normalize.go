package transcript

// Normalize folds whitespace-only tokens into the word that follows them.
//
// The blank token's text is prepended to its successor, the successor starts
// where the blank started, and its duration grows by the blank's duration so
// the gap before a word is owned by that word. Runs of blanks accumulate into
// the next spoken word. A trailing blank with no successor is dropped and its
// duration is lost.
//
// Normalize never modifies its input and returns an empty sequence for empty
// input.
func Normalize(words Sequence) Sequence {
	out := make(Sequence, 0, len(words))

	var pending *Word
	for _, w := range words {
		if w.IsBlank() {
			if pending == nil {
				p := w
				pending = &p
			} else {
				pending.Text += w.Text
				pending.Duration += w.Duration
			}
			continue
		}

		if pending != nil {
			w.Text = pending.Text + w.Text
			w.Duration += pending.Duration
			w.Start = pending.Start
			pending = nil
		}
		out = append(out, w)
	}

	return out
}
