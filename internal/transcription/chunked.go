package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/audio"
	"voice-analysis-go/internal/logger"
)

// Chunked transcribes long recordings window by window and merges the texts.
type Chunked struct {
	STT        Transcriber
	WindowSec  float64
	OverlapSec float64
	Language   string
	// TempDir is the parent of per-file chunk directories; empty means os.TempDir.
	TempDir string

	log *logrus.Entry
}

func NewChunked(stt Transcriber, windowSec, overlapSec float64, language string, log *logrus.Entry) *Chunked {
	if windowSec <= 0 {
		windowSec = audio.DefaultWindowSec
	}
	if overlapSec < 0 {
		overlapSec = audio.DefaultOverlapSec
	}
	return &Chunked{
		STT:        stt,
		WindowSec:  windowSec,
		OverlapSec: overlapSec,
		Language:   language,
		log:        logger.OrDiscard(log, "chunked_stt"),
	}
}

// Transcribe returns the merged transcript of audioPath. An empty language
// uses c.Language. It fails only when the audio cannot be chunked or no chunk
// produced a transcript.
func (c *Chunked) Transcribe(ctx context.Context, audioPath, language string) (Merged, error) {
	if language == "" {
		language = c.Language
	}
	strategy := MergeStrategy(c.WindowSec, c.OverlapSec)
	log := c.log.WithFields(logrus.Fields{"file": audioPath, "language": language})

	clip, err := audio.Open(audioPath)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			log.WithError(err).Info("not a PCM wav, transcribing in one shot")
			return c.single(ctx, audioPath, language, strategy)
		}
		return Merged{}, err
	}

	info := clip.Info()
	windows, err := audio.Chunk(info.TotalFrames, info.SampleRate, c.WindowSec, c.OverlapSec)
	if err != nil {
		return Merged{}, err
	}
	if len(windows) == 1 {
		return c.single(ctx, audioPath, language, strategy)
	}

	dir, err := os.MkdirTemp(c.TempDir, "chunks-")
	if err != nil {
		return Merged{}, fmt.Errorf("create chunk dir: %w", err)
	}
	defer os.RemoveAll(dir)

	log.WithFields(logrus.Fields{
		"duration_sec": info.DurationSec(),
		"chunks":       len(windows),
	}).Info("transcribing in chunks")

	results := make([]ChunkResult, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return Merged{}, err
		}
		results = append(results, c.transcribeWindow(ctx, clip, w, dir, language, log))
	}

	merged := Merge(results, strategy)
	if merged.ChunksSucceeded == 0 {
		return merged, fmt.Errorf("all %d chunks failed to transcribe", merged.ChunksTotal)
	}
	return merged, nil
}

func (c *Chunked) transcribeWindow(ctx context.Context, clip *audio.Clip, w audio.Window, dir, language string, log *logrus.Entry) ChunkResult {
	res := ChunkResult{Window: w}
	log = log.WithField("chunk_index", w.Index)

	path, err := clip.Extract(w, dir)
	if err != nil {
		log.WithError(err).Warn("chunk extraction failed")
		res.Error = err.Error()
		return res
	}
	defer os.Remove(path)

	text, err := c.STT.Transcribe(ctx, path, language)
	if err != nil {
		log.WithError(err).Warn("chunk transcription failed")
		res.Error = err.Error()
		return res
	}
	res.Text = text
	res.Success = true
	return res
}

func (c *Chunked) single(ctx context.Context, audioPath, language, strategy string) (Merged, error) {
	text, err := c.STT.Transcribe(ctx, audioPath, language)
	if err != nil {
		return Merged{}, fmt.Errorf("transcribe: %w", err)
	}
	return Merged{Text: text, ChunksTotal: 1, ChunksSucceeded: 1, MergeStrategy: strategy}, nil
}
