// Package eval runs infill evaluation trials over a transcribed recording:
// each trial cuts the left and right context, asks the synthesis service for
// the middle, and joins the three into a clip for listening.
package eval

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/infill-eval/internal/transcript"
)

var validate = validator.New()

// Status is the outcome of one trial.
type Status string

const (
	// StatusCompleted means a new artifact was written.
	StatusCompleted Status = "completed"
	// StatusSkipped means the artifact already existed and no work was done.
	StatusSkipped Status = "skipped"
	// StatusFailed means a collaborator failed for this trial.
	StatusFailed Status = "failed"
)

// IsValid returns true if the status is known.
func (s Status) IsValid() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusFailed
}

// Trial is one evaluation of the infill operation at a position in the
// source recording. It is built by the runner and not modified afterwards.
type Trial struct {
	Index       int    `validate:"min=0"`
	StartIndex  int    `validate:"min=0"`
	Left        int    `validate:"min=0"`
	Middle      int    `validate:"min=1"`
	Right       int    `validate:"min=0"`
	SourceAudio string `validate:"required"`
	VoiceID     string
}

// WithVoice returns a copy of the trial bound to voiceID.
func (t Trial) WithVoice(voiceID string) Trial {
	t.VoiceID = voiceID
	return t
}

// TrialResult records what happened to one trial.
type TrialResult struct {
	Trial        Trial
	Status       Status
	Boundaries   transcript.Boundaries
	ArtifactPath string
	// URL is set when the artifact was published to S3.
	URL string
	// GeneratedSec is the duration of the synthesized middle, when known.
	GeneratedSec float64
	Elapsed      time.Duration
	Err          error
}

// Error returns the failure message, or "" for successful trials.
func (r TrialResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Report summarizes a batch.
type Report struct {
	RunID      string
	VoiceID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []TrialResult
}

// Duration returns the wall time of the batch.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Count returns the number of results with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failures returns the failed trials in execution order.
func (r *Report) Failures() []TrialResult {
	var failed []TrialResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}
