package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jormala/tablewatch/internal/engine"
)

func newWatchCmd() *cobra.Command {
	var (
		flagInterval time.Duration
		flagAuto     bool
		flagPrompt   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for changes and keep local exports in sync",
		Long: `Run the watch scheduler until interrupted. Each pass checks every watched
table's freshness signal sequentially and resyncs the ones that changed,
either automatically or after prompting, depending on --auto/--prompt and
the watch.auto_resync config setting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := resolvedCfg.RequireConnection(); err != nil {
				return err
			}

			logger := buildLogger()

			interval := resolvedCfg.PollInterval
			if flagInterval > 0 {
				interval = flagInterval
			}

			autoResync := resolvedCfg.AutoResync
			if flagAuto {
				autoResync = true
			}

			if flagPrompt {
				autoResync = false
			}

			reg, err := openRegistry(logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			jnl, err := openJournal(logger)
			if err != nil {
				return err
			}
			defer jnl.Close()

			prompter := newTerminalPrompter(logger, func(tableID string) (string, bool) {
				for _, rec := range reg.ListAll() {
					if rec.Table == tableID {
						return rec.LocalPath, true
					}
				}

				return "", false
			})

			metaClient := newMetaClient(logger)

			pipeline := engine.NewPipeline(&engine.PipelineConfig{
				Binary:   resolvedCfg.Tool.Binary,
				Host:     resolvedCfg.Connection.Host,
				Token:    resolvedCfg.Connection.Token,
				Meta:     metaClient,
				Runner:   engine.NewExecRunner(logger),
				Prompter: prompter,
				Logger:   logger,
			})

			sched := engine.NewScheduler(&engine.SchedulerConfig{
				Registry:     reg,
				Detector:     engine.NewDetector(metaClient, logger),
				Pipeline:     pipeline,
				Policy:       engine.NewPolicy(autoResync, prompter, logger),
				Journal:      jnl,
				Logger:       logger,
				RecordDelay:  resolvedCfg.RecordDelay,
				InitialDelay: resolvedCfg.InitialDelay,
			})

			ctx := shutdownContext(cmd.Context(), logger)

			var g errgroup.Group

			// Artifact watcher: resync tables whose local file disappears.
			artifacts, err := engine.NewArtifactWatcher(reg.ListAll(), sched.MarkStale, logger)
			if err != nil {
				return err
			}

			g.Go(func() error { return artifacts.Run(ctx) })

			if err := sched.Start(ctx, interval); err != nil {
				return err
			}

			<-ctx.Done()

			// First signal: stop scheduling, let the in-flight pass drain.
			sched.Stop()
			sched.Wait()

			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&flagInterval, "interval", 0, "poll interval (defaults to watch.poll_interval)")
	cmd.Flags().BoolVar(&flagAuto, "auto", false, "resync changed tables without prompting")
	cmd.Flags().BoolVar(&flagPrompt, "prompt", false, "always ask before resyncing")
	cmd.MarkFlagsMutuallyExclusive("auto", "prompt")

	return cmd
}
