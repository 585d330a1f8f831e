package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confts/confts/pkg/config"
	"github.com/confts/confts/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath     string
		limit      int
		entry      string
		status     string
		keep       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history [build-id]",
		Short: "Show recorded builds",
		Long: `List builds recorded in the history database, newest first, or show one
build with its dependencies and policy messages.

Builds are recorded when history is enabled in confts.yaml or --history is
passed to compile or watch.`,
		Example: `  # Last 20 builds
  confts history

  # Failed builds of one entry as JSON
  confts history --entry app.conf.ts --status failed --json

  # Keep only the newest 100 builds
  confts history --prune 100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if dbPath == "" {
				p, err := loadProject(cmd, nil)
				if err != nil {
					return err
				}
				dbPath = config.DefaultHistoryPath
				if p.History.Path != "" {
					dbPath = p.History.Path
				}
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("no history database at %s: %w", dbPath, err)
			}

			store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: dbPath, Logger: log.Logger})
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("prune") {
				n, err := store.PruneBuilds(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d builds\n", n)
				return nil
			}

			if len(args) == 1 {
				b, err := store.GetBuild(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, b)
				}
				printBuild(out, b)
				return nil
			}

			builds, err := store.ListBuilds(ctx, stores.ListOptions{
				Entry:  entry,
				Status: stores.BuildStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, builds)
			}
			if len(builds) == 0 {
				fmt.Fprintln(out, "No builds recorded")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-19s  %-9s  %-8s  %8s  %4s  %s\n",
				"ID", "STARTED", "STATUS", "STAGE", "DURATION", "DEPS", "ENTRY")
			for _, b := range builds {
				fmt.Fprintf(out, "%-36s  %-19s  %-9s  %-8s  %8s  %4d  %s\n",
					b.ID,
					b.StartedAt.Local().Format("2006-01-02 15:04:05"),
					b.Status,
					dash(b.Stage),
					b.Duration().Round(time.Millisecond),
					len(b.Dependencies),
					b.Entry,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default from confts.yaml or "+config.DefaultHistoryPath+")")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of builds to list, 0 for all")
	cmd.Flags().StringVar(&entry, "entry", "", "only builds of this entry")
	cmd.Flags().StringVar(&status, "status", "", "only builds with this status: succeeded or failed")
	cmd.Flags().IntVar(&keep, "prune", 0, "delete all but the newest N builds")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func printBuild(w io.Writer, b *stores.Build) {
	fmt.Fprintf(w, "Build:    %s\n", b.ID)
	fmt.Fprintf(w, "Entry:    %s\n", b.Entry)
	fmt.Fprintf(w, "Format:   %s (macro: %v)\n", b.Format, b.Macro)
	fmt.Fprintf(w, "Trigger:  %s\n", b.Trigger)
	fmt.Fprintf(w, "Started:  %s\n", b.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", b.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Status:   %s\n", b.Status)
	if b.Status == stores.BuildStatusFailed {
		fmt.Fprintf(w, "Stage:    %s (%s)\n", b.Stage, b.ErrorKind)
		fmt.Fprintf(w, "Error:    %s\n", strings.ReplaceAll(b.Error, "\n", "\n          "))
	} else {
		fmt.Fprintf(w, "Digest:   %s (%d bytes)\n", b.Digest, b.OutputBytes)
	}
	if len(b.Dependencies) > 0 {
		fmt.Fprintln(w, "Dependencies:")
		for _, d := range b.Dependencies {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
	if len(b.Messages) > 0 {
		fmt.Fprintln(w, "Policy messages:")
		for _, m := range b.Messages {
			fmt.Fprintf(w, "  %-4s %s: %s\n", m.Level, m.Policy, m.Message)
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
