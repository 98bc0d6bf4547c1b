package transcription

import (
	"fmt"
	"strings"

	"voice-analysis-go/internal/audio"
)

// ChunkResult is the transcription outcome of one window.
type ChunkResult struct {
	Window  audio.Window `json:"window"`
	Text    string       `json:"text"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
}

// Merged is the transcript assembled from all chunk results of one file.
type Merged struct {
	Text            string `json:"text"`
	ChunksTotal     int    `json:"chunks_total"`
	ChunksSucceeded int    `json:"chunks_succeeded"`
	MergeStrategy   string `json:"merge_strategy"`
}

// MergeStrategy describes the window policy, e.g. "30s chunk + 12s overlap".
func MergeStrategy(windowSec, overlapSec float64) string {
	return fmt.Sprintf("%gs chunk + %gs overlap", windowSec, overlapSec)
}

// Merge concatenates successful chunk texts in order, separated by one space.
// Failed chunks are skipped. Text repeated inside overlaps is kept as is.
func Merge(results []ChunkResult, strategy string) Merged {
	m := Merged{ChunksTotal: len(results), MergeStrategy: strategy}

	var b strings.Builder
	for _, r := range results {
		if !r.Success {
			continue
		}
		m.ChunksSucceeded++
		if r.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Text)
	}
	m.Text = b.String()
	return m
}
