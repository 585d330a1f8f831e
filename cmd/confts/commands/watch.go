package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/engine"
	"github.com/confts/confts/pkg/policy"
	"github.com/confts/confts/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	var (
		flags       buildFlags
		debounce    = watch.DefaultDebounce
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch [entry]",
		Short: "Rebuild whenever a dependency changes",
		Long: `Compile the entry file and rebuild it whenever one of the files it was built
from changes. The watched set follows the dependency list of the last build.
Policy files are watched too; a policy change reloads the policies and rebuilds.

A failed build is reported and watching continues.`,
		Example: `  # Rebuild app.generated.json on every change
  confts watch --generated app.conf.ts

  # Expose build metrics while watching
  confts watch --metrics-addr :9090 app.conf.ts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := loadProject(cmd, &flags)
			if err != nil {
				return err
			}
			files, err := entries(p, args)
			if err != nil {
				return err
			}
			entry := files[0]
			if cmd.Flags().Changed("debounce") {
				p.Watch.Debounce = debounce
			}
			if cmd.Flags().Changed("metrics-addr") {
				p.Watch.Metrics = metricsAddr != ""
				p.Watch.MetricsAddr = metricsAddr
			}

			tel, err := newTelemetry(p)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) }()

			b, err := newBuilder(ctx, p, tel)
			if err != nil {
				return err
			}
			defer b.Close()

			if p.Watch.Metrics {
				go func() {
					if err := tel.Metrics.Serve(ctx, p.Watch.MetricsAddr); err != nil {
						log.Error().Err(err).Str("addr", p.Watch.MetricsAddr).Msg("Metrics server failed")
					}
				}()
				log.Info().Str("addr", p.Watch.MetricsAddr).Msg("Serving metrics")
			}

			w, err := watch.New(watch.Config{
				Entry:    entry,
				Debounce: p.Watch.Debounce,
				Logger:   log.Logger,
			}, func(ctx context.Context, t watch.Trigger) ([]string, error) {
				if t.Reason != watch.ReasonInitial {
					tel.Metrics.RecordWatchRebuild(t.Reason)
					_ = tel.Events.PublishWatchRebuild(entry, t.Changed)
				}

				req := b.request(entry)
				req.Trigger = engine.TriggerWatch
				res, err := b.engine.Build(ctx, req)
				if err != nil {
					reportFailure(cmd.ErrOrStderr(), err)
					var berr *engine.BuildError
					if errors.As(err, &berr) {
						return berr.Dependencies, err
					}
					return nil, err
				}
				if err := b.emit(cmd, res, flags.deps); err != nil {
					return res.Dependencies, err
				}
				return res.Dependencies, nil
			})
			if err != nil {
				return err
			}

			if len(p.Policy.Paths) > 0 {
				err := b.loader.Watch(ctx, p.Policy.Paths, func(loaded []policy.Policy) error {
					if err := b.policies.Load(ctx, loaded); err != nil {
						return err
					}
					w.Trigger(watch.ReasonPolicy)
					return nil
				})
				if err != nil {
					return fmt.Errorf("failed to watch policies: %w", err)
				}
			}

			return w.Run(ctx)
		},
	}

	flags.register(cmd, true)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rebuild")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}
