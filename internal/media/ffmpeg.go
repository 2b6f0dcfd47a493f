package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrNoInputs is returned when no paths are provided for joining.
	ErrNoInputs = errors.New("media: no input paths provided")
	// ErrInvalidRange is returned when a trim range is empty or negative.
	ErrInvalidRange = errors.New("media: invalid time range")
	// ErrInvalidJoinMode is returned for an unknown join mode.
	ErrInvalidJoinMode = errors.New("media: invalid join mode")
	// ErrInvalidFade is returned when a fade length is negative or longer than the file.
	ErrInvalidFade = errors.New("media: invalid fade")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH). ffprobe is
// looked up next to a custom ffmpeg binary, or via PATH otherwise.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	ffprobePath := "ffprobe"
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	} else if dir := filepath.Dir(ffmpegPath); dir != "." {
		ffprobePath = filepath.Join(dir, "ffprobe")
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Trim extracts [start, end) seconds of src into dst.
func (p *FFmpegProcessor) Trim(ctx context.Context, src, dst string, start, end float64, opts EncodeOpts) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: start=%.3f end=%.3f", ErrInvalidRange, start, end)
	}

	args := []string{
		"-y",
		"-ss", formatSec(start),
		"-t", formatSec(end - start),
		"-i", src,
	}
	args = append(args, encodeArgs(opts)...)
	args = append(args, dst)

	return p.runFFmpeg(ctx, args)
}

// Convert re-encodes src into dst. The output container follows dst's extension.
func (p *FFmpegProcessor) Convert(ctx context.Context, src, dst string, opts EncodeOpts) error {
	args := []string{"-y", "-i", src}
	args = append(args, encodeArgs(opts)...)
	args = append(args, dst)

	return p.runFFmpeg(ctx, args)
}

// Fade applies an afade in at the start and out at the end of src.
func (p *FFmpegProcessor) Fade(ctx context.Context, src, dst string, opts FadeOpts) error {
	if opts.In < 0 || opts.Out < 0 {
		return fmt.Errorf("%w: in=%.3f out=%.3f", ErrInvalidFade, opts.In, opts.Out)
	}
	if opts.In == 0 && opts.Out == 0 {
		return p.copyFile(src, dst)
	}

	duration, err := p.GetMediaDuration(ctx, src)
	if err != nil {
		return fmt.Errorf("fade: %w", err)
	}

	filter, err := fadeFilter(duration, opts)
	if err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", src,
		"-af", filter,
		dst,
	}
	return p.runFFmpeg(ctx, args)
}

// fadeFilter builds the afade chain for a file of the given duration.
func fadeFilter(duration float64, opts FadeOpts) (string, error) {
	if opts.In+opts.Out > duration {
		return "", fmt.Errorf("%w: fades of %.3fs+%.3fs exceed %.3fs", ErrInvalidFade, opts.In, opts.Out, duration)
	}

	var parts []string
	if opts.In > 0 {
		parts = append(parts, fmt.Sprintf("afade=t=in:st=0:d=%s", formatSec(opts.In)))
	}
	if opts.Out > 0 {
		parts = append(parts, fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSec(duration-opts.Out), formatSec(opts.Out)))
	}
	return strings.Join(parts, ","), nil
}

// Join writes paths into dst either back to back or with crossfades.
// Concat first attempts a stream copy and falls back to re-encoding.
func (p *FFmpegProcessor) Join(ctx context.Context, paths []string, dst string, opts JoinOpts) error {
	if len(paths) == 0 {
		return ErrNoInputs
	}
	if opts.Mode == "" {
		opts.Mode = JoinConcat
	}
	if !opts.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidJoinMode, opts.Mode)
	}

	if len(paths) == 1 {
		return p.copyFile(paths[0], dst)
	}

	if opts.Mode == JoinCrossfade && opts.CrossfadeSec > 0 {
		return p.joinWithCrossfade(ctx, paths, dst, opts)
	}

	listFile, err := p.createConcatList(paths)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	if err := p.joinWithCopy(ctx, listFile, dst); err == nil {
		return nil
	}
	return p.joinWithReencode(ctx, listFile, dst, opts.Encode)
}

// joinWithCopy concatenates using stream copy (no re-encoding).
func (p *FFmpegProcessor) joinWithCopy(ctx context.Context, listFile, dst string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		dst,
	}
	return p.runFFmpeg(ctx, args)
}

// joinWithReencode concatenates and re-encodes with opts.
func (p *FFmpegProcessor) joinWithReencode(ctx context.Context, listFile, dst string, opts EncodeOpts) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}
	args = append(args, encodeArgs(opts)...)
	args = append(args, dst)
	return p.runFFmpeg(ctx, args)
}

// joinWithCrossfade chains acrossfade filters over all inputs.
func (p *FFmpegProcessor) joinWithCrossfade(ctx context.Context, paths []string, dst string, opts JoinOpts) error {
	args := []string{"-y"}
	for _, path := range paths {
		args = append(args, "-i", path)
	}
	args = append(args,
		"-filter_complex", crossfadeFilter(len(paths), opts.CrossfadeSec),
		"-map", "[out]",
	)
	args = append(args, encodeArgs(opts.Encode)...)
	args = append(args, dst)

	return p.runFFmpeg(ctx, args)
}

// crossfadeFilter builds a filter graph that crossfades n inputs pairwise,
// left to right, into the [out] label.
func crossfadeFilter(n int, d float64) string {
	var b strings.Builder
	prev := "[0:a]"
	for i := 1; i < n; i++ {
		label := fmt.Sprintf("[x%d]", i)
		if i == n-1 {
			label = "[out]"
		}
		if i > 1 {
			b.WriteString(";")
		}
		fmt.Fprintf(&b, "%s[%d:a]acrossfade=d=%s:c1=tri:c2=tri%s", prev, i, formatSec(d), label)
		prev = label
	}
	return b.String()
}

// encodeArgs converts opts into ffmpeg output arguments. Zero fields are omitted.
func encodeArgs(opts EncodeOpts) []string {
	var args []string
	if opts.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(opts.Channels))
	}
	if opts.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRate))
	}
	if opts.Codec != "" {
		args = append(args, "-c:a", opts.Codec)
	}
	return args
}

func formatSec(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// createConcatList creates a temporary file containing the list of files
// in the format required by ffmpeg's concat demuxer.
func (p *FFmpegProcessor) createConcatList(paths []string) (string, error) {
	f, err := os.CreateTemp("", "ffmpeg-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// copyFile copies a file from src to dst.
func (p *FFmpegProcessor) copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// GetMediaDuration returns the duration in seconds of a media file.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

// Verify interface implementation at compile time.
var _ Processor = (*FFmpegProcessor)(nil)
