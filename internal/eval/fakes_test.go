package eval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maauso/infill-eval/internal/audio"
	"github.com/maauso/infill-eval/internal/cartesia"
	"github.com/maauso/infill-eval/internal/media"
	"github.com/maauso/infill-eval/internal/storage"
	"github.com/maauso/infill-eval/internal/transcript"
)

var errBoom = errors.New("boom")

type trimCall struct {
	src        string
	start, end float64
}

type convertCall struct {
	src, dst string
	opts     media.EncodeOpts
}

// fakeMedia writes small text files instead of audio.
type fakeMedia struct {
	mu       sync.Mutex
	trims    []trimCall
	converts []convertCall
	fades    int
	joins    [][]string
	joinErr  error
	trimErr  error
}

func (m *fakeMedia) Trim(_ context.Context, src, dst string, start, end float64, _ media.EncodeOpts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims = append(m.trims, trimCall{src: src, start: start, end: end})
	if m.trimErr != nil {
		return m.trimErr
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("[%.2f-%.2f]", start, end)), 0600)
}

func (m *fakeMedia) Convert(_ context.Context, src, dst string, opts media.EncodeOpts) error {
	m.mu.Lock()
	m.converts = append(m.converts, convertCall{src: src, dst: dst, opts: opts})
	m.mu.Unlock()
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}

func (m *fakeMedia) Fade(_ context.Context, src, dst string, _ media.FadeOpts) error {
	m.mu.Lock()
	m.fades++
	m.mu.Unlock()
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("~"), data...), 0600)
}

func (m *fakeMedia) Join(_ context.Context, paths []string, dst string, _ media.JoinOpts) error {
	m.mu.Lock()
	m.joins = append(m.joins, paths)
	joinErr := m.joinErr
	m.mu.Unlock()
	if joinErr != nil {
		return joinErr
	}
	var buf bytes.Buffer
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(dst, buf.Bytes(), 0600)
}

func (m *fakeMedia) GetMediaDuration(context.Context, string) (float64, error) {
	return 1, nil
}

func (m *fakeMedia) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trims) + len(m.converts) + m.fades + len(m.joins)
}

// fakeInfiller records requests and returns "GEN".
type fakeInfiller struct {
	requests []cartesia.InfillRequest
	contexts []string
	// failOn makes the n-th call (1-based) fail.
	failOn int
}

func (f *fakeInfiller) Infill(_ context.Context, req cartesia.InfillRequest) (io.ReadCloser, error) {
	f.requests = append(f.requests, req)
	var ctxText []string
	for _, r := range []io.Reader{req.Left, req.Right} {
		if r == nil {
			ctxText = append(ctxText, "")
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		ctxText = append(ctxText, string(data))
	}
	f.contexts = append(f.contexts, strings.Join(ctxText, "|"))
	if f.failOn == len(f.requests) {
		return nil, errBoom
	}
	return io.NopCloser(strings.NewReader("GEN")), nil
}

// fakeVoices counts resolutions.
type fakeVoices struct {
	id    string
	err   error
	calls int
}

func (v *fakeVoices) VoiceID(context.Context) (string, error) {
	v.calls++
	return v.id, v.err
}

// publishingStorage is a LocalStorage whose S3 uploads land in memory.
type publishingStorage struct {
	*storage.LocalStorage
	uploads map[string]string
}

func (s *publishingStorage) UploadToS3(_ context.Context, key string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.uploads[key] = string(b)
	return "https://bucket.example/" + key, nil
}

type fixture struct {
	media    *fakeMedia
	infill   *fakeInfiller
	store    *storage.LocalStorage
	driver   *Driver
	outDir   string
	tempDir  string
	source   string
	inspects int
}

func newFixture(t *testing.T, mutate func(*DriverOptions)) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		media:   &fakeMedia{},
		infill:  &fakeInfiller{},
		outDir:  filepath.Join(root, "out"),
		tempDir: filepath.Join(root, "tmp"),
		source:  filepath.Join(root, "source.wav"),
	}
	require.NoError(t, os.WriteFile(f.source, []byte("RIFF"), 0600))

	store, err := storage.NewLocalStorage(f.tempDir)
	require.NoError(t, err)
	f.store = store

	opts := DefaultDriverOptions()
	opts.OutputDir = f.outDir
	if mutate != nil {
		mutate(&opts)
	}
	f.driver = NewDriver(f.media, f.infill, store, nil, opts)
	f.driver.inspect = func(string) (audio.Info, error) {
		f.inspects++
		return audio.Info{SampleRate: 44100, Channels: 1, BitDepth: 16}, nil
	}
	return f
}

// tempFiles lists whatever is left in the scratch directory.
func (f *fixture) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// makeWords builds n clean words spaced 0.5s apart.
func makeWords(n int) transcript.Sequence {
	words := make(transcript.Sequence, n)
	for i := range words {
		text := fmt.Sprintf(" word%d", i)
		if i == 0 {
			text = "word0"
		}
		words[i] = transcript.Word{Text: text, Start: float64(i) * 0.5, Duration: 0.4}
	}
	return words
}

func storageAt(dir string) (*storage.LocalStorage, error) {
	return storage.NewLocalStorage(dir)
}
