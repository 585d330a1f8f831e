package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/stores"
)

const projectTemplate = `# confts project file
entry: %s
format: json
macro: false
generated: true

# schema:
#   file: schema.cue
#   definition: "#Config"

policy:
  paths:
    - policies
  mode: enforcing

history:
  enabled: true
  path: %s

watch:
  debounce: 200ms
`

const entryTemplate = `enum Env {
  Dev = 'dev',
  Prod = 'prod',
}

const name = 'app';

export default {
  name,
  env: Env.Dev,
  port: 8080,
};
`

const policyTemplate = `# Services must listen on unprivileged ports.
package confts.ports

deny contains msg if {
	input.output.port < 1024
	msg := sprintf("port %d is privileged", [input.output.port])
}
`

func newInitCommand() *cobra.Command {
	var (
		entry string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a confts project",
		Long: `Create a confts.yaml project file, a sample entry file, a policies
directory and the build history database.

Existing files are kept unless --force is given.`,
		Example: `  # Initialize the current directory
  confts init

  # Initialize ./config with a custom entry name
  confts init --entry service.conf.ts ./config`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			log.Info().Str("dir", dir).Str("entry", entry).Msg("Initializing project")
			out := cmd.OutOrStdout()

			for _, d := range []string{dir, filepath.Join(dir, "policies"), filepath.Join(dir, ".confts")} {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
			}

			files := []struct {
				path    string
				content string
			}{
				{filepath.Join(dir, config.DefaultProjectFile), fmt.Sprintf(projectTemplate, entry, config.DefaultHistoryPath)},
				{filepath.Join(dir, entry), entryTemplate},
				{filepath.Join(dir, "policies", "ports.rego"), policyTemplate},
			}
			for _, f := range files {
				created, err := writeIfMissing(f.path, f.content, force)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "✓ Created %s\n", f.path)
				} else {
					fmt.Fprintf(out, "✓ %s already exists\n", f.path)
				}
			}

			dbPath := filepath.Join(dir, config.DefaultHistoryPath)
			store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: dbPath, Logger: log.Logger})
			if err != nil {
				return fmt.Errorf("failed to initialize history: %w", err)
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Initialized history database: %s\n", dbPath)

			fmt.Fprintf(out, "\nNext steps:\n")
			fmt.Fprintf(out, "  confts compile -c %s\n", filepath.Join(dir, config.DefaultProjectFile))
			fmt.Fprintf(out, "  confts watch -c %s\n", filepath.Join(dir, config.DefaultProjectFile))
			return nil
		},
	}

	cmd.Flags().StringVar(&entry, "entry", "app.conf.ts", "name of the sample entry file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

func writeIfMissing(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
