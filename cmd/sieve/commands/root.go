package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teenjuna/sieve/internal/config"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	verbose    bool
	configFile string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "sieve",
		Short: "Feed integers through a bounded buffer to selective consumers",
		Long: `sieve - one producer, a fixed-capacity buffer and consumers that only take
the items matching their predicate.

The producer puts every input item into the buffer, followed by one sentinel per
consumer. Each consumer removes the first item matching its predicate, sums what
it took and stops once it receives a sentinel, which it puts back for the others.

If the buffer fills up with items no consumer accepts, the run stalls until it is
interrupted. Nothing is ever dropped.

Examples:
  # Run the default even, odd and prime consumers
  sieve run numbers.txt

  # Two consumers, a buffer of two slots and a journal
  sieve run numbers.txt --capacity 2 --consumers even,odd --journal runs.db
  sieve history --journal runs.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "config file (YAML)")

	cmd.AddCommand(
		newRunCommand(g),
		newHistoryCommand(g),
		newPredicatesCommand(),
	)

	return cmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// config returns the config file given by --config, or the default config.
func (g *globals) config() (*config.Config, error) {
	if g.configFile == "" {
		return config.Default(), nil
	}
	return config.Load(g.configFile)
}

func (g *globals) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
