package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/engine"
)

func newCompileCommand() *cobra.Command {
	var (
		flags buildFlags
		jobs  int
	)

	cmd := &cobra.Command{
		Use:   "compile [entry...]",
		Short: "Compile configuration entry files",
		Long: `Compile the default export of each entry file to JSON or YAML.

The output goes to stdout unless --output or --generated is set. With several
entries they are compiled in parallel and --output is not allowed.

When a schema or policies are configured the output is checked before it is
written; a violation fails the build and nothing is written.`,
		Example: `  # Compile to JSON on stdout
  confts compile app.conf.ts

  # Macro mode, YAML, written next to the entry as app.generated.yaml
  confts compile -m -f yaml --generated app.conf.ts

  # Check against a CUE definition and a policy directory
  confts compile --schema schema.cue --schema-def '#Config' --policy ./policies app.conf.ts`,
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
			if len(files) > 1 && p.Output != "" {
				return fmt.Errorf("--output cannot be used with %d entries; use --generated", len(files))
			}

			tel, err := newTelemetry(p)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			b, err := newBuilder(ctx, p, tel)
			if err != nil {
				return err
			}
			defer b.Close()

			if len(files) == 1 {
				res, err := b.engine.Build(ctx, b.request(files[0]))
				if err != nil {
					return err
				}
				return b.emit(cmd, res, flags.deps)
			}

			reqs := make([]engine.Request, len(files))
			for i, f := range files {
				reqs[i] = b.request(f)
			}
			results := b.engine.BuildAll(ctx, reqs, jobs)
			for _, r := range results {
				if r.Err != nil {
					reportFailure(cmd.ErrOrStderr(), r.Err)
					continue
				}
				if err := b.emit(cmd, r.Result, flags.deps); err != nil {
					return err
				}
			}

			if n := engine.Failed(results); n > 0 {
				return fmt.Errorf("%d of %d builds failed", n, len(results))
			}
			log.Debug().Int("builds", len(results)).Msg("All builds succeeded")
			return nil
		},
	}

	flags.register(cmd, true)
	cmd.Flags().IntVarP(&jobs, "jobs", "j", engine.DefaultParallelism, "parallel builds when several entries are given")

	return cmd
}
