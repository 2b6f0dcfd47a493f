// Package cache persists word timestamps so a recording is only transcribed once.
//
// Entries are flat JSON files named by a content hash of the source audio and
// the transcription parameters, so a renamed copy of a recording hits the cache
// and an edited recording with the same name does not.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/infill-eval/internal/transcript"
)

// ErrCorruptEntry is returned when a cache file exists but cannot be decoded.
var ErrCorruptEntry = errors.New("cache: corrupt entry")

// Key identifies one cache entry.
type Key string

// KeyFor hashes the audio file contents together with the transcription options.
func KeyFor(audioPath string, params transcript.TranscribeOptions) (Key, error) {
	f, err := os.Open(audioPath) // #nosec G304 - path comes from configuration
	if err != nil {
		return "", fmt.Errorf("cache: open audio: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cache: hash audio: %w", err)
	}
	fmt.Fprintf(h, "\x00%s\x00%s\x00%s", params.Model, params.Language, params.Granularity)

	return Key(hex.EncodeToString(h.Sum(nil))), nil
}

// entry is the on-disk format.
type entry struct {
	Source    string              `json:"source"`
	Model     string              `json:"model,omitempty"`
	Language  string              `json:"language,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Words     transcript.Sequence `json:"words"`
}

// Store is a directory of cached word sequences.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "infill-eval", "timestamps")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}

// Get returns the cached sequence for key. A missing entry is reported with
// ok == false and a nil error.
func (s *Store) Get(key Key) (transcript.Sequence, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read entry: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrCorruptEntry, key, err)
	}
	return e.Words, true, nil
}

// Put writes words under key, replacing any previous entry.
func (s *Store) Put(key Key, source string, params transcript.TranscribeOptions, words transcript.Sequence) error {
	data, err := json.MarshalIndent(entry{
		Source:    source,
		Model:     params.Model,
		Language:  params.Language,
		CreatedAt: time.Now().UTC(),
		Words:     words,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, string(key)+"_*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: close entry: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: rename entry: %w", err)
	}
	return nil
}

// Transcriber is the remote speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, params transcript.TranscribeOptions) (transcript.Sequence, error)
}

// CachingTranscriber serves word timestamps from a Store and only calls the
// remote transcriber on a miss. Fresh results are normalized before they are
// stored, so cached sequences never contain whitespace-only tokens.
type CachingTranscriber struct {
	store  *Store
	remote Transcriber
	logger *slog.Logger
}

// NewCachingTranscriber wraps remote with store.
func NewCachingTranscriber(store *Store, remote Transcriber, logger *slog.Logger) *CachingTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingTranscriber{store: store, remote: remote, logger: logger}
}

// Words returns the normalized word sequence for audioPath.
func (c *CachingTranscriber) Words(ctx context.Context, audioPath string, params transcript.TranscribeOptions) (transcript.Sequence, error) {
	key, err := KeyFor(audioPath, params)
	if err != nil {
		return nil, err
	}

	words, ok, err := c.store.Get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		c.logger.Info("timestamps loaded from cache",
			slog.String("source", filepath.Base(audioPath)),
			slog.Int("words", len(words)),
		)
		return words, nil
	}

	c.logger.Info("transcribing source audio",
		slog.String("source", filepath.Base(audioPath)),
		slog.String("model", params.Model),
		slog.String("language", params.Language),
	)

	raw, err := c.remote.Transcribe(ctx, audioPath, params)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), err)
	}

	words = transcript.Normalize(raw)
	if err := c.store.Put(key, filepath.Base(audioPath), params, words); err != nil {
		return nil, err
	}

	c.logger.Info("timestamps cached",
		slog.Int("raw_words", len(raw)),
		slog.Int("words", len(words)),
		slog.String("key", string(key)[:12]),
	)
	return words, nil
}
