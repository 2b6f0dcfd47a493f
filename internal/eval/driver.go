package eval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/maauso/infill-eval/internal/audio"
	"github.com/maauso/infill-eval/internal/cartesia"
	"github.com/maauso/infill-eval/internal/media"
	"github.com/maauso/infill-eval/internal/storage"
	"github.com/maauso/infill-eval/internal/transcript"
)

// Static errors for the evaluation driver.
var (
	// ErrVoiceRequired is returned when a trial that needs synthesis has no voice.
	ErrVoiceRequired = errors.New("eval: trial has no voice id")
	// ErrInvalidTrial is returned when a trial fails validation.
	ErrInvalidTrial = errors.New("eval: invalid trial")
)

// Context clips and every intermediate are WAV encoded with
// DriverOptions.Encode; only the joined artifact uses the output container.
const intermediateExt = ".wav"

// minClipSec is the shortest context worth cutting. Shorter ranges round to
// zero in ffmpeg's millisecond arguments and are treated as empty.
const minClipSec = 0.001

// Infiller synthesizes the middle of a trial.
type Infiller interface {
	Infill(ctx context.Context, req cartesia.InfillRequest) (io.ReadCloser, error)
}

// DriverOptions configures how trials are rendered.
type DriverOptions struct {
	OutputDir  string
	Encode     media.EncodeOpts
	Format     cartesia.OutputFormat
	Join       media.JoinOpts
	FadeSec    float64
	ModelID    string
	Language   string
	SlugLength int
	// Publish uploads finished artifacts through Storage.UploadToS3.
	Publish bool
}

// DefaultDriverOptions returns options matching the provider defaults.
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{
		OutputDir:  "output",
		Encode:     media.DefaultEncodeOpts(),
		Format:     cartesia.DefaultOutputFormat(),
		Join:       media.JoinOpts{Mode: media.JoinConcat, Encode: media.DefaultEncodeOpts()},
		ModelID:    "sonic-2",
		Language:   "en",
		SlugLength: 40,
	}
}

// Driver renders a single trial into an artifact on disk.
type Driver struct {
	media   media.Processor
	infill  Infiller
	store   storage.Storage
	logger  *slog.Logger
	opts    DriverOptions
	inspect func(path string) (audio.Info, error)
}

// NewDriver creates a Driver. A nil logger uses slog.Default().
func NewDriver(m media.Processor, infill Infiller, store storage.Storage, logger *slog.Logger, opts DriverOptions) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SlugLength <= 0 {
		opts.SlugLength = 40
	}
	if opts.Format == (cartesia.OutputFormat{}) {
		opts.Format = cartesia.DefaultOutputFormat()
	}
	if opts.Join.Encode == (media.EncodeOpts{}) {
		opts.Join.Encode = opts.Encode
	}
	return &Driver{
		media:   m,
		infill:  infill,
		store:   store,
		logger:  logger,
		opts:    opts,
		inspect: audio.Inspect,
	}
}

// Plan computes the boundaries of trial and the path its artifact will have.
// It performs no I/O.
func (d *Driver) Plan(trial Trial, words transcript.Sequence) (transcript.Boundaries, string, error) {
	if err := validate.Struct(trial); err != nil {
		return transcript.Boundaries{}, "", fmt.Errorf("%w: %w", ErrInvalidTrial, err)
	}
	b, err := transcript.ComputeBoundaries(words, trial.StartIndex, trial.Left, trial.Middle, trial.Right)
	if err != nil {
		return transcript.Boundaries{}, "", err
	}
	return b, d.ArtifactPath(trial, b), nil
}

// ArtifactPath names the artifact of a trial as <index>_<slug>_<hash>.<ext>.
// The hash covers the text and time ranges of all three segments, so a
// changed transcript produces a new name instead of reusing a stale clip.
func (d *Driver) ArtifactPath(trial Trial, b transcript.Boundaries) string {
	name := fmt.Sprintf("%03d_%s_%s%s",
		trial.Index,
		Slug(b.Middle.Text, d.opts.SlugLength),
		contentHash(b),
		d.opts.Format.Ext(),
	)
	return filepath.Join(d.opts.OutputDir, name)
}

// Slug lowercases text, replaces runs of non-alphanumerics with a single
// underscore and truncates to limit runes. Empty input yields "clip".
func Slug(text string, limit int) string {
	var b strings.Builder
	underscore := false
	n := 0
	for _, r := range strings.ToLower(text) {
		if limit > 0 && n >= limit {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			n++
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
			n++
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "clip"
	}
	return s
}

func contentHash(b transcript.Boundaries) string {
	h := sha256.New()
	for _, s := range []transcript.Segment{b.Left, b.Middle, b.Right} {
		_, _ = fmt.Fprintf(h, "%q %d:%d %.3f-%.3f\n", s.Text, s.From, s.To, s.Start, s.End)
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Exists reports whether an artifact is already on disk.
func (d *Driver) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Run renders trial. If its artifact already exists nothing else happens and
// the result is StatusSkipped. On failure the result has StatusFailed and
// the error is also returned.
func (d *Driver) Run(ctx context.Context, trial Trial, words transcript.Sequence) (TrialResult, error) {
	started := time.Now()
	result := TrialResult{Trial: trial}

	fail := func(err error) (TrialResult, error) {
		result.Status = StatusFailed
		result.Err = err
		result.Elapsed = time.Since(started)
		return result, err
	}

	bounds, path, err := d.Plan(trial, words)
	if err != nil {
		return fail(err)
	}
	result.Boundaries = bounds
	result.ArtifactPath = path

	logger := d.logger.With(
		slog.Int("trial", trial.Index),
		slog.Int("start_index", trial.StartIndex),
		slog.String("artifact", path),
	)

	if d.Exists(path) {
		logger.Info("artifact exists, skipping trial")
		result.Status = StatusSkipped
		result.Elapsed = time.Since(started)
		return result, nil
	}

	if trial.VoiceID == "" {
		return fail(ErrVoiceRequired)
	}

	logger.Info("running trial",
		slog.String("middle", strings.TrimSpace(bounds.Middle.Text)),
		slog.Float64("middle_start", bounds.Middle.Start),
		slog.Float64("middle_end", bounds.Middle.End),
	)

	var temps []string
	defer func() {
		if err := d.store.CleanupTemp(context.WithoutCancel(ctx), temps); err != nil {
			logger.Warn("failed to clean up temp files", slog.String("error", err.Error()))
		}
	}()

	leftPath, err := d.extract(ctx, trial, bounds.Left, "left", &temps)
	if err != nil {
		return fail(fmt.Errorf("extract left context: %w", err))
	}
	rightPath, err := d.extract(ctx, trial, bounds.Right, "right", &temps)
	if err != nil {
		return fail(fmt.Errorf("extract right context: %w", err))
	}

	generated, err := d.synthesize(ctx, trial, bounds.Middle, leftPath, rightPath, &temps)
	if err != nil {
		return fail(fmt.Errorf("infill: %w", err))
	}

	conform := true
	if d.opts.Format.Container == "wav" {
		info, err := d.inspect(generated)
		if err != nil {
			return fail(fmt.Errorf("inspect generated audio: %w", err))
		}
		result.GeneratedSec = info.Seconds()
		logger.Info("infill received",
			slog.Float64("generated_sec", info.Seconds()),
			slog.Float64("original_sec", bounds.Middle.Duration()),
			slog.Int("sample_rate", info.SampleRate),
			slog.Int("channels", info.Channels),
		)
		conform = !matchesEncoding(info, d.opts.Encode)
	}

	if conform {
		conformed, err := d.store.TempFile(fmt.Sprintf("trial%03d_conformed", trial.Index), intermediateExt)
		if err != nil {
			return fail(fmt.Errorf("conform generated audio: %w", err))
		}
		temps = append(temps, conformed)
		if err := d.media.Convert(ctx, generated, conformed, d.opts.Encode); err != nil {
			return fail(fmt.Errorf("conform generated audio: %w", err))
		}
		logger.Debug("generated audio re-encoded to context format",
			slog.Int("sample_rate", d.opts.Encode.SampleRate),
			slog.Int("channels", d.opts.Encode.Channels),
		)
		generated = conformed
	}

	if d.opts.FadeSec > 0 {
		faded, err := d.store.TempFile(fmt.Sprintf("trial%03d_faded", trial.Index), intermediateExt)
		if err != nil {
			return fail(fmt.Errorf("fade: %w", err))
		}
		temps = append(temps, faded)
		if err := d.media.Fade(ctx, generated, faded, media.FadeOpts{In: d.opts.FadeSec, Out: d.opts.FadeSec}); err != nil {
			return fail(fmt.Errorf("fade: %w", err))
		}
		generated = faded
	}

	parts := make([]string, 0, 3)
	if leftPath != "" {
		parts = append(parts, leftPath)
	}
	parts = append(parts, generated)
	if rightPath != "" {
		parts = append(parts, rightPath)
	}

	if err := d.join(ctx, parts, path); err != nil {
		return fail(fmt.Errorf("join: %w", err))
	}

	if d.opts.Publish {
		url, err := d.publish(ctx, path)
		if err != nil {
			return fail(fmt.Errorf("publish: %w", err))
		}
		result.URL = url
	}

	result.Status = StatusCompleted
	result.Elapsed = time.Since(started)
	logger.Info("trial completed",
		slog.Duration("elapsed", result.Elapsed),
		slog.String("url", result.URL),
	)
	return result, nil
}

// matchesEncoding reports whether a WAV clip can be joined with the context
// clips as is. Zero fields in opts match anything.
func matchesEncoding(info audio.Info, opts media.EncodeOpts) bool {
	if opts.SampleRate > 0 && info.SampleRate != opts.SampleRate {
		return false
	}
	if opts.Channels > 0 && info.Channels != opts.Channels {
		return false
	}
	if (opts.Codec == "" || opts.Codec == "pcm_s16le") && info.BitDepth != 16 {
		return false
	}
	return true
}

// extract trims seg out of the source audio. An empty segment, or one shorter
// than minClipSec, yields "".
func (d *Driver) extract(ctx context.Context, trial Trial, seg transcript.Segment, side string, temps *[]string) (string, error) {
	if seg.Len() == 0 || seg.End-seg.Start < minClipSec {
		return "", nil
	}
	dst, err := d.store.TempFile(fmt.Sprintf("trial%03d_%s", trial.Index, side), intermediateExt)
	if err != nil {
		return "", err
	}
	*temps = append(*temps, dst)

	if err := d.media.Trim(ctx, trial.SourceAudio, dst, seg.Start, seg.End, d.opts.Encode); err != nil {
		return "", err
	}
	return dst, nil
}

// synthesize sends the context clips and the middle text to the infiller and
// stores the returned stream.
func (d *Driver) synthesize(ctx context.Context, trial Trial, middle transcript.Segment, leftPath, rightPath string, temps *[]string) (string, error) {
	req := cartesia.InfillRequest{
		Transcript: strings.TrimSpace(middle.Text),
		VoiceID:    trial.VoiceID,
		ModelID:    d.opts.ModelID,
		Language:   d.opts.Language,
		Format:     d.opts.Format,
		ContextExt: intermediateExt,
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if leftPath != "" {
		r, err := d.store.LoadTemp(ctx, leftPath)
		if err != nil {
			return "", err
		}
		closers = append(closers, r)
		req.Left = r
	}
	if rightPath != "" {
		r, err := d.store.LoadTemp(ctx, rightPath)
		if err != nil {
			return "", err
		}
		closers = append(closers, r)
		req.Right = r
	}

	stream, err := d.infill.Infill(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	path, err := d.store.SaveTemp(ctx, fmt.Sprintf("trial%03d_middle%s", trial.Index, d.opts.Format.Ext()), stream)
	if err != nil {
		return "", err
	}
	*temps = append(*temps, path)
	return path, nil
}

// join writes parts to a hidden sibling of dst and renames it into place, so
// an interrupted join never leaves a file that would make the trial skip.
func (d *Driver) join(ctx context.Context, parts []string, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	partial := filepath.Join(filepath.Dir(dst), ".partial_"+filepath.Base(dst))
	if err := d.media.Join(ctx, parts, partial, d.opts.Join); err != nil {
		_ = os.Remove(partial)
		return err
	}
	if err := os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func (d *Driver) publish(ctx context.Context, path string) (string, error) {
	r, err := d.store.LoadTemp(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	return d.store.UploadToS3(ctx, filepath.Base(path), r)
}
