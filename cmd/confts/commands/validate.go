package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "validate [entry...]",
		Short: "Check entry files without writing output",
		Long: `Run the full build for each entry file and report the result without
writing any output.

This command checks:
  - the sources parse and compile
  - the output satisfies the configured CUE schema
  - the output passes the configured rego policies`,
		Example: `  # Validate the project entry
  confts validate

  # Validate with a schema and policies
  confts validate --schema schema.cue --schema-def '#Config' --policy ./policies app.conf.ts`,
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

			reqs := make([]engine.Request, len(files))
			for i, f := range files {
				reqs[i] = b.request(f)
			}
			results := b.engine.BuildAll(ctx, reqs, engine.DefaultParallelism)

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "FAIL %s\n", r.Request.Entry)
					reportFailure(cmd.ErrOrStderr(), r.Err)
					continue
				}
				fmt.Fprintf(out, "ok   %s (%d dependencies)\n", r.Request.Entry, len(r.Result.Dependencies))
				for _, w := range r.Result.Warnings {
					fmt.Fprintf(out, "     warning: %s: %s\n", w.Policy, w.Message)
				}
			}

			if n := engine.Failed(results); n > 0 {
				return fmt.Errorf("%d of %d entries failed validation", n, len(results))
			}
			return nil
		},
	}

	flags.register(cmd, false)

	return cmd
}
