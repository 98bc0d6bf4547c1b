package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/logger"
	"voice-analysis-go/internal/transcription"
)

// StageSTT names the speech-to-text step in errors.
const StageSTT = "stt"

// Error is a stage-aware pipeline failure.
type Error struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transcriber produces the merged transcript of one file. An empty language
// leaves the choice to the transcriber.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (transcription.Merged, error)
}

// Executor runs one analysis stage.
type Executor interface {
	Execute(ctx context.Context, text string) fallback.Outcome
}

// Options selects the optional stages and the transcription language.
type Options struct {
	PrivacyRemoval   bool
	Classification   bool
	ElementDetection bool
	Language         string
}

// Result is what one file produced.
type Result struct {
	Transcript transcription.Merged `json:"transcript"`
	Outcomes   []fallback.Outcome   `json:"stage_outcomes"`
	FinalText  string               `json:"final_text"`
	DurationMs int64                `json:"duration_ms"`
}

// Pipeline runs STT and then the enabled stages strictly in order.
type Pipeline struct {
	stt            Transcriber
	privacy        Executor
	classification Executor
	elements       Executor
	log            *logrus.Entry
}

func New(stt Transcriber, stages analysis.Stages, log *logrus.Entry) *Pipeline {
	p := &Pipeline{stt: stt, log: logger.OrDiscard(log, "pipeline")}
	// nil *Stage values must not end up as non-nil interfaces
	if stages.Privacy != nil {
		p.privacy = stages.Privacy
	}
	if stages.Classification != nil {
		p.classification = stages.Classification
	}
	if stages.Elements != nil {
		p.elements = stages.Elements
	}
	return p
}

// WithExecutors replaces the stage executors. Nil leaves a stage unchanged.
func (p *Pipeline) WithExecutors(privacy, classification, elements Executor) *Pipeline {
	if privacy != nil {
		p.privacy = privacy
	}
	if classification != nil {
		p.classification = classification
	}
	if elements != nil {
		p.elements = elements
	}
	return p
}

// Process transcribes audioPath and runs the selected stages. Each stage reads
// the text left by the closest preceding stage; privacy removal hands on its
// redacted text. Degraded stages never fail the file.
func (p *Pipeline) Process(ctx context.Context, audioPath string, opts Options) (Result, error) {
	start := time.Now()
	log := p.log.WithField("file", audioPath)
	var res Result

	merged, err := p.stt.Transcribe(ctx, audioPath, opts.Language)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, &Error{Stage: StageSTT, Message: "transcription failed", Err: err}
	}
	if merged.ChunksSucceeded == 0 {
		return res, &Error{Stage: StageSTT, Message: fmt.Sprintf("no usable transcript from %d chunks", merged.ChunksTotal)}
	}
	res.Transcript = merged
	text := merged.Text

	steps := []struct {
		enabled bool
		exec    Executor
	}{
		{opts.PrivacyRemoval, p.privacy},
		{opts.Classification, p.classification},
		{opts.ElementDetection, p.elements},
	}
	for _, s := range steps {
		if !s.enabled || s.exec == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out := s.exec.Execute(ctx, text)
		res.Outcomes = append(res.Outcomes, out)

		entry := log.WithFields(logrus.Fields{
			"stage":    out.Stage,
			"provider": out.Result.ProviderID,
			"degraded": out.Degraded,
		})
		if !out.Result.Success {
			entry.WithField("error", out.Result.Error).Error("stage produced no result")
			continue
		}
		entry.Info("stage done")

		if pr, ok := out.Result.Payload.(analysis.PrivacyResult); ok {
			text = pr.RedactedText
		}
	}

	res.FinalText = text
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}
