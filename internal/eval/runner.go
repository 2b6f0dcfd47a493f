package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/infill-eval/internal/transcript"
)

// BatchOptions describes a batch of evenly spaced trials.
type BatchOptions struct {
	Trials      int    `validate:"min=1"`
	Left        int    `validate:"min=0"`
	Middle      int    `validate:"min=1"`
	Right       int    `validate:"min=0"`
	SourceAudio string `validate:"required"`
}

// Needed returns the number of words one trial spans.
func (o BatchOptions) Needed() int {
	return o.Left + o.Middle + o.Right
}

// PlannedTrial is a trial with its boundaries and artifact path resolved.
type PlannedTrial struct {
	Trial        Trial
	Boundaries   transcript.Boundaries
	ArtifactPath string
	Exists       bool
}

// Runner executes trials one at a time.
type Runner struct {
	driver *Driver
	voices VoiceResolver
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger uses slog.Default().
func NewRunner(driver *Driver, voices VoiceResolver, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{driver: driver, voices: voices, logger: logger}
}

// Plan lays out the trials of a batch without calling any collaborator.
// It fails with *transcript.InsufficientWordsError when words cannot hold a
// single window.
func (r *Runner) Plan(words transcript.Sequence, opts BatchOptions) ([]PlannedTrial, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid batch options: %w", err)
	}

	starts, err := transcript.StartIndices(len(words), opts.Needed(), opts.Trials)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedTrial, 0, len(starts))
	for i, start := range starts {
		trial := Trial{
			Index:       i,
			StartIndex:  start,
			Left:        opts.Left,
			Middle:      opts.Middle,
			Right:       opts.Right,
			SourceAudio: opts.SourceAudio,
		}
		bounds, path, err := r.driver.Plan(trial, words)
		if err != nil {
			return nil, fmt.Errorf("plan trial %d: %w", i, err)
		}
		planned = append(planned, PlannedTrial{
			Trial:        trial,
			Boundaries:   bounds,
			ArtifactPath: path,
			Exists:       r.driver.Exists(path),
		})
	}
	return planned, nil
}

// Run executes every planned trial in order.
//
// A trial whose artifact exists is skipped without resolving the voice or
// calling any collaborator. The voice is resolved when the first trial needs
// it; a resolution failure stops the batch and is returned with the partial
// report. Any other trial failure is recorded and the batch continues.
func (r *Runner) Run(ctx context.Context, words transcript.Sequence, opts BatchOptions) (*Report, error) {
	planned, err := r.Plan(words, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Results:   make([]TrialResult, 0, len(planned)),
	}
	logger := r.logger.With(slog.String("run_id", report.RunID))
	logger.Info("starting batch",
		slog.Int("trials", len(planned)),
		slog.Int("words", len(words)),
		slog.Int("left", opts.Left),
		slog.Int("middle", opts.Middle),
		slog.Int("right", opts.Right),
	)

	finish := func() {
		report.FinishedAt = time.Now()
		logger.Info("batch finished",
			slog.Int("completed", report.Count(StatusCompleted)),
			slog.Int("skipped", report.Count(StatusSkipped)),
			slog.Int("failed", report.Count(StatusFailed)),
			slog.Duration("elapsed", report.Duration()),
		)
	}

	for _, p := range planned {
		if err := ctx.Err(); err != nil {
			finish()
			return report, fmt.Errorf("batch cancelled: %w", err)
		}

		if p.Exists {
			logger.Info("artifact exists, skipping trial",
				slog.Int("trial", p.Trial.Index),
				slog.String("artifact", p.ArtifactPath),
			)
			report.Results = append(report.Results, TrialResult{
				Trial:        p.Trial,
				Status:       StatusSkipped,
				Boundaries:   p.Boundaries,
				ArtifactPath: p.ArtifactPath,
			})
			continue
		}

		if report.VoiceID == "" {
			id, err := r.voices.VoiceID(ctx)
			if err != nil {
				finish()
				return report, fmt.Errorf("resolve voice: %w", err)
			}
			report.VoiceID = id
		}

		result, err := r.driver.Run(ctx, p.Trial.WithVoice(report.VoiceID), words)
		if err != nil {
			logger.Error("trial failed",
				slog.Int("trial", p.Trial.Index),
				slog.String("error", err.Error()),
			)
		}
		report.Results = append(report.Results, result)
	}

	finish()
	return report, nil
}
