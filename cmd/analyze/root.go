package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/bootstrap"
	"voice-analysis-go/internal/config"
	"voice-analysis-go/internal/jobs"
	"voice-analysis-go/internal/logger"
	"voice-analysis-go/internal/report"
	"voice-analysis-go/internal/types"
)

type analyzeOptions struct {
	manifest    string
	dir         string
	scope       string
	out         string
	concurrency int
	privacy     bool
	classify    bool
	validate    bool
	language    string
	quiet       bool
}

func newRootCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [files...]",
		Short: "Transcribe and analyze call recordings",
		Long: `Analyze transcribes call recordings and runs the selected analysis stages
(privacy removal, classification, incomplete-sales detection) on each file.

Files are resolved under <dir>/<scope>. They can be passed as arguments or
listed in an xlsx manifest. Results are written to an xlsx report.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAnalyze(ctx, cmd.OutOrStdout(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.manifest, "manifest", "", "xlsx file listing the audio files to analyze")
	f.StringVar(&opts.dir, "dir", "", "base directory holding one folder per scope (default from config)")
	f.StringVar(&opts.scope, "scope", "", "scope folder under --dir")
	f.StringVarP(&opts.out, "out", "o", "analysis.xlsx", "path of the xlsx report")
	f.IntVar(&opts.concurrency, "concurrency", 0, "files processed in parallel (default from config)")
	f.BoolVar(&opts.privacy, "privacy", true, "run privacy removal")
	f.BoolVar(&opts.classify, "classify", true, "run classification")
	f.BoolVar(&opts.validate, "validate", false, "run incomplete-sales element detection")
	f.StringVar(&opts.language, "language", "", "transcription language (default from config)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "discard logs")

	return cmd
}

func runAnalyze(ctx context.Context, out io.Writer, opts analyzeOptions, args []string) error {
	files := args
	if opts.manifest != "" {
		listed, err := report.LoadManifest(opts.manifest)
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		files = append(files, listed...)
	}
	if len(files) == 0 {
		return errors.New("no files given: pass file names or --manifest")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.dir != "" {
		cfg.Storage.BaseDir = opts.dir
	}
	if opts.concurrency > 0 {
		cfg.Scheduler.MaxConcurrent = opts.concurrency
	}

	log := logger.New()
	if opts.quiet {
		log = logger.Discard()
	}
	app, err := bootstrap.New(cfg, log.Component("bootstrap"))
	if err != nil {
		return err
	}

	res, err := app.Scheduler.Submit(ctx, jobs.SubmitRequest{
		Scope: opts.scope,
		Files: files,
		Options: types.Options{
			IncludePrivacyRemoval: opts.privacy,
			IncludeClassification: opts.classify,
			IncludeValidation:     opts.validate,
			Language:              opts.language,
		},
	})
	if err != nil {
		return err
	}
	runErr := app.Scheduler.Run(ctx, res.Job.JobID)

	rep, err := app.Report(context.WithoutCancel(ctx), res.Job.JobID)
	if err != nil {
		return errors.Join(runErr, err)
	}
	if err := report.Export(opts.out, rep.Job, rep.Tasks, rep.Summary); err != nil {
		return errors.Join(runErr, err)
	}

	s := rep.Summary
	fmt.Fprintf(out, "job %s: %d files, %d completed, %d failed\n",
		rep.Job.JobID, s.Total, s.ByStatus[types.StatusCompleted], s.ByStatus[types.StatusFailed])
	for _, stage := range []string{analysis.StagePrivacy, analysis.StageClassification, analysis.StageElements} {
		if n := s.DegradedStages[stage]; n > 0 {
			fmt.Fprintf(out, "  %s degraded on %d files\n", stage, n)
		}
	}
	fmt.Fprintf(out, "report written to %s\n", opts.out)
	return runErr
}
