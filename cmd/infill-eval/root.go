package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/infill-eval/internal/bootstrap"
	"github.com/maauso/infill-eval/internal/config"
	"github.com/maauso/infill-eval/internal/eval"
	"github.com/maauso/infill-eval/internal/report"
	"github.com/maauso/infill-eval/internal/transcript"
)

// app carries state shared by all commands after PersistentPreRunE.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
	deps    *bootstrap.Dependencies
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "infill-eval",
		Short: "Evaluate TTS infill quality on a transcribed recording",
		Long: `infill-eval transcribes a source recording, cuts evenly spaced
left/middle/right windows out of it, asks the synthesis service to regenerate
each middle from its context, and writes the joined clips for listening.

All parameters come from the environment (or a .env file).`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runBatch,
	}

	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", os.Getenv("ENV_FILE"), "dotenv file to load (default .env)")

	cmd.AddCommand(
		newTranscribeCommand(a),
		newPlanCommand(a),
	)
	return cmd
}

// setup loads configuration, builds the logger and wires dependencies.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return err
	}

	cfg, err := config.LoadContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	logger.Info("starting infill-eval",
		slog.String("command", cmd.Name()),
		slog.String("source", cfg.SourceAudio),
		slog.Int("trials", cfg.Trials),
		slog.String("output_dir", cfg.OutputDir),
		slog.String("join_mode", cfg.JoinMode),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	a.cfg, a.logger, a.deps = cfg, logger, deps
	return nil
}

// words returns the normalized transcript of the source recording.
// Transcription failures are fatal: no trial can run without timestamps.
func (a *app) words(cmd *cobra.Command) (transcript.Sequence, error) {
	words, err := a.deps.Transcriber.Words(cmd.Context(), a.cfg.SourceAudio, bootstrap.TranscribeOptions(a.cfg))
	if err != nil {
		return nil, err
	}
	return words, nil
}

func (a *app) runBatch(cmd *cobra.Command, _ []string) error {
	words, err := a.words(cmd)
	if err != nil {
		return err
	}

	rep, runErr := a.deps.Runner.Run(cmd.Context(), words, bootstrap.BatchOptions(a.cfg))
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep)

		if a.cfg.ReportPath != "" {
			if err := report.WriteXLSX(a.cfg.ReportPath, rep); err != nil {
				a.logger.Error("failed to write report",
					slog.String("path", a.cfg.ReportPath),
					slog.String("error", err.Error()),
				)
			} else {
				a.logger.Info("report written", slog.String("path", a.cfg.ReportPath))
			}
		}
	}
	return runErr
}

func newTranscribeCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Fetch (or load from cache) and print the normalized word timestamps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			words, err := a.words(cmd)
			if err != nil {
				return err
			}
			if asJSON {
				return printWordsJSON(cmd.OutOrStdout(), words)
			}
			printWords(cmd.OutOrStdout(), words)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print words as JSON")
	return cmd
}

func newPlanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the trial windows and artifact names without rendering anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			words, err := a.words(cmd)
			if err != nil {
				return err
			}
			planned, err := a.deps.Runner.Plan(words, bootstrap.BatchOptions(a.cfg))
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), planned)
			return nil
		},
	}
}

func printWords(w io.Writer, words transcript.Sequence) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tTEXT")
	for i, word := range words {
		fmt.Fprintf(tw, "%d\t%.3f\t%.3f\t%q\n", i, word.Start, word.End(), word.Text)
	}
	_ = tw.Flush()
}

func printWordsJSON(w io.Writer, words transcript.Sequence) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(words)
}

func printPlan(w io.Writer, planned []eval.PlannedTrial) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tSTART\tMIDDLE\tRANGE\tEXISTS\tARTIFACT")
	for _, p := range planned {
		m := p.Boundaries.Middle
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.3f-%.3f\t%t\t%s\n",
			p.Trial.Index,
			p.Trial.StartIndex,
			strings.TrimSpace(m.Text),
			m.Start, m.End,
			p.Exists,
			filepath.Base(p.ArtifactPath),
		)
	}
	_ = tw.Flush()
}

func printReport(w io.Writer, rep *eval.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tSTATUS\tARTIFACT\tERROR")
	for _, r := range rep.Results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Trial.Index, r.Status, r.ArtifactPath, r.Error())
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nrun %s: %d completed, %d skipped, %d failed\n",
		rep.RunID,
		rep.Count(eval.StatusCompleted),
		rep.Count(eval.StatusSkipped),
		rep.Count(eval.StatusFailed),
	)
}
