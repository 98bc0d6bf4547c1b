package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSTT answers the n-th call with replies[n].
type scriptedSTT struct {
	mu      sync.Mutex
	replies []reply
	paths   []string
	langs   []string
}

type reply struct {
	text string
	err  error
}

func (s *scriptedSTT) Transcribe(_ context.Context, path, language string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.paths)
	s.paths = append(s.paths, path)
	s.langs = append(s.langs, language)
	if n >= len(s.replies) {
		return "", errors.New("unexpected call")
	}
	return s.replies[n].text, s.replies[n].err
}

func silentWAV(t *testing.T, dir string, seconds, rate int) string {
	t.Helper()
	path := filepath.Join(dir, "call.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, seconds*rate),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestChunked_SixtySixSecondCall(t *testing.T) {
	dir := t.TempDir()
	src := silentWAV(t, dir, 66, 16000)

	stt := &scriptedSTT{replies: []reply{
		{text: "hello"},
		{err: errors.New("stt timeout")},
		{text: "world"},
	}}
	c := NewChunked(stt, 30, 12, "ko", nil)
	c.TempDir = dir

	merged, err := c.Transcribe(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", merged.Text)
	assert.Equal(t, 3, merged.ChunksTotal)
	assert.Equal(t, 2, merged.ChunksSucceeded)
	assert.Equal(t, "30s chunk + 12s overlap", merged.MergeStrategy)

	require.Len(t, stt.paths, 3)
	assert.Equal(t, []string{"ko", "ko", "ko"}, stt.langs)
	for _, p := range stt.paths {
		assert.NotEqual(t, src, p)
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "chunk file %s left behind", p)
	}
}

func TestChunked_ShortFileTranscribedDirectly(t *testing.T) {
	src := silentWAV(t, t.TempDir(), 5, 8000)
	stt := &scriptedSTT{replies: []reply{{text: "short call"}}}

	merged, err := NewChunked(stt, 30, 12, "", nil).Transcribe(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, "short call", merged.Text)
	assert.Equal(t, 1, merged.ChunksTotal)
	assert.Equal(t, []string{src}, stt.paths)
}

func TestChunked_RequestLanguageOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	src := silentWAV(t, dir, 40, 8000)
	stt := &scriptedSTT{replies: []reply{{text: "good"}, {text: "morning"}}}
	c := NewChunked(stt, 30, 12, "ko", nil)
	c.TempDir = dir

	merged, err := c.Transcribe(context.Background(), src, "en")
	require.NoError(t, err)
	assert.Equal(t, "good morning", merged.Text)
	assert.Equal(t, []string{"en", "en"}, stt.langs)
}

func TestChunked_AllChunksFail(t *testing.T) {
	src := silentWAV(t, t.TempDir(), 66, 8000)
	stt := &scriptedSTT{}

	merged, err := NewChunked(stt, 30, 12, "", nil).Transcribe(context.Background(), src, "")
	require.Error(t, err)
	assert.Equal(t, 0, merged.ChunksSucceeded)
	assert.Equal(t, 3, merged.ChunksTotal)
}

func TestChunked_NonWAVFallsBackToSingleShot(t *testing.T) {
	src := filepath.Join(t.TempDir(), "call.mp3")
	require.NoError(t, os.WriteFile(src, []byte("not a wav"), 0o644))
	stt := &scriptedSTT{replies: []reply{{text: "mp3 text"}}}

	merged, err := NewChunked(stt, 30, 12, "", nil).Transcribe(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, "mp3 text", merged.Text)
}

func TestChunked_InvalidPolicy(t *testing.T) {
	src := silentWAV(t, t.TempDir(), 2, 8000)
	_, err := NewChunked(&scriptedSTT{}, 10, 10, "", nil).Transcribe(context.Background(), src, "")
	assert.Error(t, err)
}

func TestChunked_MissingFile(t *testing.T) {
	_, err := NewChunked(&scriptedSTT{}, 30, 12, "", nil).Transcribe(context.Background(), "/does/not/exist.wav", "")
	assert.Error(t, err)
}
