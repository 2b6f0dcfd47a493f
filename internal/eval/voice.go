package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/infill-eval/internal/cartesia"
)

// ErrNoVoiceSource is returned when neither a voice id nor a sample is configured.
var ErrNoVoiceSource = errors.New("eval: no voice id or voice sample configured")

// VoiceResolver provides the voice identity shared by every trial of a batch.
type VoiceResolver interface {
	VoiceID(ctx context.Context) (string, error)
}

// Cloner creates a voice from a sample recording.
type Cloner interface {
	CloneVoice(ctx context.Context, sample io.Reader, opts cartesia.CloneOptions) (string, error)
}

// CachedVoice resolves a voice once per process. A preset ID is returned as
// is; otherwise the sample file is cloned on first use and the result kept.
type CachedVoice struct {
	id     string
	sample string
	opts   cartesia.CloneOptions
	cloner Cloner
	logger *slog.Logger
}

// NewCachedVoice creates a resolver. presetID may be empty, in which case
// sample is cloned through cloner.
func NewCachedVoice(presetID, sample string, opts cartesia.CloneOptions, cloner Cloner, logger *slog.Logger) *CachedVoice {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Filename == "" && sample != "" {
		opts.Filename = filepath.Base(sample)
	}
	return &CachedVoice{
		id:     presetID,
		sample: sample,
		opts:   opts,
		cloner: cloner,
		logger: logger,
	}
}

// VoiceID returns the voice, cloning it on the first call if needed.
func (v *CachedVoice) VoiceID(ctx context.Context) (string, error) {
	if v.id != "" {
		return v.id, nil
	}
	if v.sample == "" || v.cloner == nil {
		return "", ErrNoVoiceSource
	}

	f, err := os.Open(v.sample) // #nosec G304 - sample path comes from configuration
	if err != nil {
		return "", fmt.Errorf("open voice sample: %w", err)
	}
	defer func() { _ = f.Close() }()

	v.logger.Info("cloning voice",
		slog.String("sample", v.sample),
		slog.String("name", v.opts.Name),
	)

	id, err := v.cloner.CloneVoice(ctx, f, v.opts)
	if err != nil {
		return "", fmt.Errorf("clone voice: %w", err)
	}

	v.logger.Info("voice cloned", slog.String("voice_id", id))
	v.id = id
	return id, nil
}
