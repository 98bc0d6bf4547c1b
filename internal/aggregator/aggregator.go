package aggregator

import (
	"math"

	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/types"
)

// Summary is the roll-up of a job's file tasks.
type Summary struct {
	Total           int                  `json:"total"`
	ByStatus        map[types.Status]int `json:"by_status"`
	ProgressPercent float64              `json:"progress_percent"`
	CategoryCounts  map[string]int       `json:"category_counts"`
	PrivacyHits     int                  `json:"privacy_hits"`
	ElementCounts   map[string]int       `json:"element_counts"`
	DegradedStages  map[string]int       `json:"degraded_stages"`
	ChunksTotal     int                  `json:"chunks_total"`
	ChunksFailed    int                  `json:"chunks_failed"`
}

func Summarize(tasks []types.FileTask) Summary {
	s := Summary{
		Total:          len(tasks),
		ByStatus:       map[types.Status]int{},
		CategoryCounts: map[string]int{},
		ElementCounts:  map[string]int{},
		DegradedStages: map[string]int{},
	}

	terminal := 0
	for _, t := range tasks {
		s.ByStatus[t.Status]++
		if t.Status.Terminal() {
			terminal++
		}
		if t.Transcript != nil {
			s.ChunksTotal += t.Transcript.ChunksTotal
			s.ChunksFailed += t.Transcript.ChunksTotal - t.Transcript.ChunksSucceeded
		}

		for _, o := range t.StageOutcomes {
			if o.Degraded {
				s.DegradedStages[o.Stage]++
			}
			if !o.Result.Success {
				continue
			}
			switch p := o.Result.Payload.(type) {
			case analysis.ClassificationResult:
				s.CategoryCounts[p.Code]++
			case analysis.PrivacyResult:
				if p.PrivacyExist == "Y" {
					s.PrivacyHits++
				}
			case analysis.ElementDetectionResult:
				for _, e := range p.DetectedElements() {
					s.ElementCounts[e]++
				}
			}
		}
	}

	if s.Total > 0 {
		s.ProgressPercent = math.Round(float64(terminal)/float64(s.Total)*1000) / 10
	}
	return s
}
