package eval

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/infill-eval/internal/audio"
	"github.com/maauso/infill-eval/internal/cartesia"
	"github.com/maauso/infill-eval/internal/media"
	"github.com/maauso/infill-eval/internal/transcript"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"words", " The quick, brown fox!", 40, "the_quick_brown_fox"},
		{"truncated", "hello world again", 8, "hello_wo"},
		{"trailing separator trimmed", "hello world", 6, "hello"},
		{"only punctuation", " ... ", 40, "clip"},
		{"empty", "", 40, "clip"},
		{"no limit", "a b c", 0, "a_b_c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.text, tt.limit))
		})
	}
}

func TestDriver_ArtifactPath(t *testing.T) {
	f := newFixture(t, nil)
	words := makeWords(21)
	trial := Trial{Index: 3, StartIndex: 0, Left: 6, Middle: 3, Right: 6, SourceAudio: f.source}

	b, path, err := f.driver.Plan(trial, words)
	require.NoError(t, err)

	assert.Equal(t, f.outDir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^003_word6_word7_word8_[0-9a-f]{8}\.wav$`), filepath.Base(path))
	assert.Equal(t, path, f.driver.ArtifactPath(trial, b), "name is deterministic")

	t.Run("changes with transcript content", func(t *testing.T) {
		edited := append(transcript.Sequence(nil), words...)
		edited[2].Text = " changed"

		_, editedPath, err := f.driver.Plan(trial, edited)
		require.NoError(t, err)
		assert.NotEqual(t, path, editedPath)
	})

	t.Run("changes with timing", func(t *testing.T) {
		// Word 6 opens the middle segment, so its start moves the cut.
		shifted := append(transcript.Sequence(nil), words...)
		shifted[6].Start += 0.25

		_, shiftedPath, err := f.driver.Plan(trial, shifted)
		require.NoError(t, err)
		assert.NotEqual(t, path, shiftedPath)
	})
}

func TestDriver_Plan_Errors(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.driver.Plan(Trial{Middle: 0, SourceAudio: f.source}, makeWords(5))
	assert.ErrorIs(t, err, ErrInvalidTrial)

	_, _, err = f.driver.Plan(Trial{Middle: 1}, makeWords(5))
	assert.ErrorIs(t, err, ErrInvalidTrial, "source audio is required")

	_, _, err = f.driver.Plan(Trial{StartIndex: 3, Left: 1, Middle: 1, Right: 1, SourceAudio: f.source}, makeWords(5))
	var insufficient *transcript.InsufficientWordsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 5, insufficient.Have)
	assert.Equal(t, 6, insufficient.Need)
}

func TestDriver_Run_Completed(t *testing.T) {
	f := newFixture(t, nil)
	words := makeWords(21)
	trial := Trial{Index: 0, StartIndex: 0, Left: 6, Middle: 3, Right: 6, SourceAudio: f.source, VoiceID: "voice-1"}

	res, err := f.driver.Run(context.Background(), trial, words)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, f.inspects)
	assert.Empty(t, f.media.converts, "a clip in the context format is joined as is")

	// Left covers words 0..5, right covers words 9..14.
	require.Len(t, f.media.trims, 2)
	assert.Equal(t, trimCall{src: f.source, start: 0, end: 2.9}, roundTrim(f.media.trims[0]))
	assert.Equal(t, trimCall{src: f.source, start: 4.5, end: 7.4}, roundTrim(f.media.trims[1]))

	require.Len(t, f.infill.requests, 1)
	req := f.infill.requests[0]
	assert.Equal(t, "word6 word7 word8", req.Transcript)
	assert.Equal(t, "voice-1", req.VoiceID)
	assert.Equal(t, "sonic-2", req.ModelID)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, "[0.00-2.90]|[4.50-7.40]", f.infill.contexts[0])

	require.Len(t, f.media.joins, 1)
	assert.Len(t, f.media.joins[0], 3)

	data, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "[0.00-2.90]GEN[4.50-7.40]", string(data))

	assert.Empty(t, f.tempFiles(t), "intermediates are cleaned up")
	assert.NoFileExists(t, filepath.Join(f.outDir, ".partial_"+filepath.Base(res.ArtifactPath)))
}

func roundTrim(c trimCall) trimCall {
	round := func(v float64) float64 { return float64(int(v*100+0.5)) / 100 }
	return trimCall{src: c.src, start: round(c.start), end: round(c.end)}
}

func TestDriver_Run_SkipsExistingArtifact(t *testing.T) {
	f := newFixture(t, nil)
	words := makeWords(21)
	trial := Trial{StartIndex: 2, Left: 6, Middle: 3, Right: 6, SourceAudio: f.source}

	_, path, err := f.driver.Plan(trial, words)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	// No voice is needed to skip.
	res, err := f.driver.Run(context.Background(), trial, words)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, path, res.ArtifactPath)
	assert.Zero(t, f.media.calls())
	assert.Empty(t, f.infill.requests)
}

func TestDriver_Run_EmptyContext(t *testing.T) {
	f := newFixture(t, nil)
	words := makeWords(10)
	trial := Trial{StartIndex: 0, Left: 0, Middle: 2, Right: 3, SourceAudio: f.source, VoiceID: "v"}

	res, err := f.driver.Run(context.Background(), trial, words)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	require.Len(t, f.media.trims, 1, "only the right context is cut")
	assert.Nil(t, f.infill.requests[0].Left)
	assert.NotNil(t, f.infill.requests[0].Right)
	require.Len(t, f.media.joins, 1)
	assert.Len(t, f.media.joins[0], 2)
}

func TestDriver_Run_Fade(t *testing.T) {
	f := newFixture(t, func(o *DriverOptions) { o.FadeSec = 0.02 })

	res, err := f.driver.Run(context.Background(),
		Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: f.source, VoiceID: "v"}, makeWords(3))
	require.NoError(t, err)
	assert.Equal(t, 1, f.media.fades)

	data, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "~GEN")
	assert.Empty(t, f.tempFiles(t))
}

func TestDriver_Run_MP3JoinsWAVParts(t *testing.T) {
	encode := media.DefaultEncodeOpts()
	f := newFixture(t, func(o *DriverOptions) {
		o.Encode = encode
		o.Format = cartesia.OutputFormat{Container: "mp3", SampleRate: 44100, BitRate: 128000}
		o.Join = media.JoinOpts{
			Mode:   media.JoinConcat,
			Encode: media.EncodeOpts{SampleRate: 44100, Channels: 1},
		}
	})

	res, err := f.driver.Run(context.Background(),
		Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: f.source, VoiceID: "v"}, makeWords(3))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Zero(t, f.inspects)
	assert.Equal(t, ".mp3", filepath.Ext(res.ArtifactPath))

	require.Len(t, f.media.converts, 1)
	conv := f.media.converts[0]
	assert.Equal(t, ".mp3", filepath.Ext(conv.src))
	assert.Equal(t, ".wav", filepath.Ext(conv.dst))
	assert.Equal(t, encode, conv.opts)

	require.Len(t, f.media.joins, 1)
	require.Len(t, f.media.joins[0], 3)
	for _, part := range f.media.joins[0] {
		assert.Equal(t, ".wav", filepath.Ext(part), "every join input shares the context format")
	}

	require.Len(t, f.infill.requests, 1)
	assert.Equal(t, ".wav", f.infill.requests[0].ContextExt)

	data, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "[0.00-0.40]GEN[1.00-1.40]", string(data))
	assert.Empty(t, f.tempFiles(t))
}

func TestDriver_Run_ConformsMismatchedWAV(t *testing.T) {
	tests := []struct {
		name string
		info audio.Info
	}{
		{"sample rate", audio.Info{SampleRate: 24000, Channels: 1, BitDepth: 16}},
		{"channels", audio.Info{SampleRate: 44100, Channels: 2, BitDepth: 16}},
		{"bit depth", audio.Info{SampleRate: 44100, Channels: 1, BitDepth: 32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.driver.inspect = func(string) (audio.Info, error) { return tt.info, nil }

			res, err := f.driver.Run(context.Background(),
				Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: f.source, VoiceID: "v"}, makeWords(3))
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, res.Status)

			require.Len(t, f.media.converts, 1)
			assert.Equal(t, media.DefaultEncodeOpts(), f.media.converts[0].opts)
			require.Len(t, f.media.joins, 1)
			assert.Equal(t, f.media.converts[0].dst, f.media.joins[0][1], "the conformed clip is joined")
			assert.Empty(t, f.tempFiles(t))
		})
	}
}

func TestDriver_Run_ZeroLengthContext(t *testing.T) {
	f := newFixture(t, nil)
	words := makeWords(3)
	words[0].Duration = 0

	res, err := f.driver.Run(context.Background(),
		Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: f.source, VoiceID: "v"}, words)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	require.Len(t, f.media.trims, 1, "a zero-length left context is not cut")
	assert.Equal(t, trimCall{src: f.source, start: 1, end: 1.4}, roundTrim(f.media.trims[0]))
	assert.Nil(t, f.infill.requests[0].Left)
	assert.NotNil(t, f.infill.requests[0].Right)
	require.Len(t, f.media.joins, 1)
	assert.Len(t, f.media.joins[0], 2)
}

func TestDriver_Run_Failures(t *testing.T) {
	trial := Trial{Left: 2, Middle: 2, Right: 2, SourceAudio: "src.wav", VoiceID: "v"}

	t.Run("missing voice", func(t *testing.T) {
		f := newFixture(t, nil)
		tr := trial
		tr.SourceAudio = f.source
		tr.VoiceID = ""

		res, err := f.driver.Run(context.Background(), tr, makeWords(6))
		assert.ErrorIs(t, err, ErrVoiceRequired)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Zero(t, f.media.calls())
	})

	t.Run("trim error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.media.trimErr = errBoom

		res, err := f.driver.Run(context.Background(), trial, makeWords(6))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Empty(t, f.infill.requests)
		assert.Empty(t, f.tempFiles(t))
	})

	t.Run("infill error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.infill.failOn = 1
		tr := trial
		tr.SourceAudio = f.source

		res, err := f.driver.Run(context.Background(), tr, makeWords(6))
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, res.Err, errBoom)
		assert.Empty(t, f.media.joins)
		assert.NoFileExists(t, res.ArtifactPath)
		assert.Empty(t, f.tempFiles(t))
	})

	t.Run("join error leaves no artifact", func(t *testing.T) {
		f := newFixture(t, nil)
		f.media.joinErr = errBoom
		tr := trial
		tr.SourceAudio = f.source

		res, err := f.driver.Run(context.Background(), tr, makeWords(6))
		assert.ErrorIs(t, err, errBoom)
		assert.NoFileExists(t, res.ArtifactPath)
		assert.False(t, f.driver.Exists(res.ArtifactPath))
	})
}

func TestDriver_Run_Publish(t *testing.T) {
	root := t.TempDir()
	local, err := storageAt(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	store := &publishingStorage{LocalStorage: local, uploads: map[string]string{}}

	m := &fakeMedia{}
	in := &fakeInfiller{}
	source := filepath.Join(root, "source.wav")
	require.NoError(t, os.WriteFile(source, []byte("RIFF"), 0600))

	opts := DefaultDriverOptions()
	opts.OutputDir = filepath.Join(root, "out")
	opts.Publish = true
	opts.Format.Container = "mp3"

	d := NewDriver(m, in, store, nil, opts)
	res, err := d.Run(context.Background(), Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: source, VoiceID: "v"}, makeWords(3))
	require.NoError(t, err)

	key := filepath.Base(res.ArtifactPath)
	assert.Equal(t, "https://bucket.example/"+key, res.URL)
	assert.Contains(t, store.uploads[key], "GEN")
}

func TestDriver_Run_PublishNotConfigured(t *testing.T) {
	f := newFixture(t, func(o *DriverOptions) { o.Publish = true })

	res, err := f.driver.Run(context.Background(),
		Trial{Left: 1, Middle: 1, Right: 1, SourceAudio: f.source, VoiceID: "v"}, makeWords(3))
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.FileExists(t, res.ArtifactPath, "the local artifact is kept")
}
