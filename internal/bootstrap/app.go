package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"voice-analysis-go/internal/agent"
	"voice-analysis-go/internal/aggregator"
	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/config"
	"voice-analysis-go/internal/fallback"
	"voice-analysis-go/internal/jobs"
	"voice-analysis-go/internal/llm"
	"voice-analysis-go/internal/logger"
	"voice-analysis-go/internal/pipeline"
	"voice-analysis-go/internal/prompts"
	"voice-analysis-go/internal/store"
	"voice-analysis-go/internal/transcription"
	"voice-analysis-go/internal/types"
)

// App wires configuration, the analysis pipeline, the job store and the
// scheduler.
type App struct {
	Config    config.Config
	Store     *store.Memory
	Scheduler *jobs.Scheduler
	Pipeline  *pipeline.Pipeline
	Prompts   *prompts.Registry
	log       *logrus.Entry
}

// Report is a job with its tasks and their roll-up.
type Report struct {
	Job     types.AnalysisJob  `json:"job"`
	Tasks   []types.FileTask   `json:"tasks"`
	Summary aggregator.Summary `json:"summary"`
}

func New(cfg config.Config, log *logrus.Entry) (*App, error) {
	log = logger.OrDiscard(log, "bootstrap")

	var stt transcription.Transcriber = transcription.Mock{}
	if !cfg.Transcriber.Mock {
		var err error
		stt, err = transcription.New(cfg.Transcriber.URL, cfg.Transcriber.Timeout, log.WithField("component", "stt"))
		if err != nil {
			return nil, fmt.Errorf("transcriber: %w", err)
		}
	}
	chunked := transcription.NewChunked(stt, cfg.Chunking.WindowSec, cfg.Chunking.OverlapSec,
		cfg.Chunking.Language, log.WithField("component", "chunker"))
	chunked.TempDir = cfg.Chunking.TempDir

	reg := prompts.NewRegistry()
	if cfg.Prompts.Dir != "" {
		n, err := reg.LoadDir(cfg.Prompts.Dir)
		if err != nil {
			return nil, fmt.Errorf("prompts: %w", err)
		}
		log.WithField("count", n).Info("prompt overrides loaded")
	}

	deps := analysis.Deps{
		Prompts:              reg,
		Chain:                fallback.NewChain(cfg.Stages.Timeout, log.WithField("component", "fallback")),
		PrivacyPrompt:        cfg.Stages.PrivacyPrompt,
		ClassificationPrompt: cfg.Stages.ClassificationPrompt,
	}
	if cfg.LLM.BaseURL != "" {
		deps.LLM = llm.NewClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}, log.WithField("component", "llm"))
	} else {
		log.Warn("no LLM configured, privacy and classification use terminal providers only")
	}
	if cfg.Agent.URL != "" {
		format := agent.RequestFormat(cfg.Agent.RequestFormat)
		deps.Agent = agent.NewClient(agent.Config{
			URL:           cfg.Agent.URL,
			RequestFormat: format,
			Timeout:       cfg.Agent.Timeout,
			Model:         cfg.LLM.Model,
		}, log.WithField("component", "agent"))
		deps.AgentPromptBased = format == agent.FormatPromptBased
	}

	p := pipeline.New(chunked, analysis.NewStages(deps), log.WithField("component", "pipeline"))
	st := store.NewMemory()
	sched := jobs.New(st, p, jobs.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		BaseDir:       cfg.Storage.BaseDir,
	}, log.WithField("component", "scheduler"))

	log.WithFields(logrus.Fields{
		"base_dir":       cfg.Storage.BaseDir,
		"max_concurrent": cfg.Scheduler.MaxConcurrent,
		"llm":            cfg.LLM.BaseURL != "",
		"agent":          cfg.Agent.URL != "",
		"mock_stt":       cfg.Transcriber.Mock,
	}).Info("app wired")

	return &App{
		Config:    cfg,
		Store:     st,
		Scheduler: sched,
		Pipeline:  p,
		Prompts:   reg,
		log:       log,
	}, nil
}

// Report loads jobID with its tasks and summarizes them.
func (a *App) Report(ctx context.Context, jobID string) (Report, error) {
	job, err := a.Store.GetJob(ctx, jobID)
	if err != nil {
		return Report{}, err
	}
	tasks, err := a.Store.ListFileTasks(ctx, jobID)
	if err != nil {
		return Report{}, err
	}
	return Report{Job: job, Tasks: tasks, Summary: aggregator.Summarize(tasks)}, nil
}
