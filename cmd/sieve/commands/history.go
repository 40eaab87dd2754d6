package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/teenjuna/sieve/internal/sqlite"
)

func newHistoryCommand(g *globals) *cobra.Command {
	var (
		journalFile string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the runs recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("journal") {
				cfg.Journal = journalFile
			}
			if limit < 1 {
				return fmt.Errorf("limit can't be < 1")
			}

			path, err := cfg.JournalPath()
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("no journal configured, use --journal or the config file")
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				_, err := fmt.Fprintln(out, "no runs recorded")
				return err
			}

			journal, err := sqlite.Open(sqlite.WithFile(path))
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer journal.Close()

			runs, err := journal.Runs(limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				_, err := fmt.Fprintln(out, "no runs recorded")
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "STARTED", "TOOK", "CAPACITY", "PRODUCED", "SUMS", "RESULT")
			for _, r := range runs {
				t.Row(
					shortID(r.ID),
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
					strconv.Itoa(r.Capacity),
					fmt.Sprintf("%d/%d", r.Produced, r.Input),
					sums(r.Consumers),
					result(r),
				)
			}

			_, err = fmt.Fprintln(out, t.Render())
			return err
		},
	}

	cmd.Flags().StringVar(&journalFile, "journal", "", "SQLite file runs were recorded to")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sums(consumers []sqlite.ConsumerResult) string {
	parts := make([]string, 0, len(consumers))
	for _, c := range consumers {
		parts = append(parts, c.Name+"="+strconv.Itoa(c.Sum))
	}
	return strings.Join(parts, " ")
}

func result(r sqlite.Run) string {
	if r.Err == "" {
		return "ok"
	}
	return r.Err
}
