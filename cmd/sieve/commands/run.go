package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/teenjuna/sieve"
	"github.com/teenjuna/sieve/input"
	"github.com/teenjuna/sieve/internal/config"
	"github.com/teenjuna/sieve/internal/sqlite"
	"github.com/teenjuna/sieve/sink"
)

const (
	// sentinelGlyph is how the console shows the sentinel.
	sentinelGlyph = "■"

	// consoleQueue is the number of events the console may lag behind the buffer.
	consoleQueue = 4096
)

type runFlags struct {
	capacity    int
	consumers   []string
	interval    time.Duration
	journal     string
	metricsAddr string
	quiet       bool
}

func newRunCommand(g *globals) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Feed a file of integers through the buffer to the consumers",
		Long: `Feed a file of integers, one per line, through the buffer to the consumers.
Use '-' to read from stdin.

Every buffer change is printed as it happens, followed by a table with the sum
each consumer collected. Interrupt the run with Ctrl+C if it stalls.

Flags override the values of the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			consumers, err := cfg.Resolve()
			if err != nil {
				return err
			}
			if err := sieve.Validate(consumers, cfg.Capacity); err != nil {
				return err
			}

			items, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			return run(cmd, g, cfg, consumers, items, f.quiet)
		},
	}

	cmd.Flags().IntVar(&f.capacity, "capacity", 0, "buffer capacity (default 5)")
	cmd.Flags().StringSliceVar(&f.consumers, "consumers", nil, "consumer predicates (default even,odd,prime)")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "snapshot interval, 0 disables snapshots (default 2s)")
	cmd.Flags().StringVar(&f.journal, "journal", "", "SQLite file to record the run to")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "don't print buffer changes")

	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("capacity") {
		cfg.Capacity = f.capacity
	}
	if flags.Changed("consumers") {
		cfg.SetConsumers(f.consumers)
	}
	if flags.Changed("interval") {
		cfg.ObserveInterval = config.Duration(f.interval)
	}
	if flags.Changed("journal") {
		cfg.Journal = f.journal
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func readInput(cmd *cobra.Command, path string) ([]int, error) {
	if path == "-" {
		items, err := input.Read(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return items, nil
	}
	return input.ReadFile(path)
}

func run(
	cmd *cobra.Command,
	g *globals,
	cfg *config.Config,
	consumers []sieve.Consumer,
	items []int,
	quiet bool,
) (err error) {
	var (
		out    = cmd.OutOrStdout()
		logger = g.logger(cmd.ErrOrStderr())
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() {
			err = errors.Join(err, journal.Close())
		}()
	}

	registry := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		shutdown, err := serveMetrics(cfg.MetricsAddr, registry, logger)
		if err != nil {
			return err
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	var (
		sinks   = make([]sieve.Sink[int], 0, 2)
		console *sink.AsyncSink[int]
		events  *sink.AsyncSink[int]
	)
	if !quiet {
		console = sink.Async[int](sink.Console[int](out, sink.WithFormat(formatItem)), consoleQueue)
		sinks = append(sinks, console)
	}
	if g.verbose {
		events = sink.Async[int](sink.Log[int](logger), consoleQueue)
		sinks = append(sinks, events)
	}

	logger.Debug(
		"starting run",
		"items", len(items),
		"capacity", cfg.Capacity,
		"consumers", len(consumers),
	)

	started := time.Now()
	report, runErr := sieve.Run(
		ctx,
		items,
		consumers,
		sieve.WithCapacity[int](cfg.Capacity),
		sieve.WithObserveInterval[int](time.Duration(cfg.ObserveInterval)),
		sieve.WithLogger[int](logger),
		sieve.WithSink[int](sink.Tee(sinks...)),
		sieve.WithPrometheus[int](sieve.Prometheus(registry)),
	)
	finished := time.Now()

	if console != nil {
		_ = console.Close()
		if dropped := console.Dropped(); dropped > 0 {
			logger.Warn("console fell behind, events were not printed", "dropped", dropped)
		}
	}
	if events != nil {
		_ = events.Close()
		if dropped := events.Dropped(); dropped > 0 {
			logger.Warn("event log fell behind, events were not logged", "dropped", dropped)
		}
	}

	if err := printReport(out, report); err != nil {
		return err
	}

	if journal != nil {
		id, err := journal.Record(toJournal(report, cfg.Capacity, len(items), started, finished, runErr))
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("record run: %w", err))
		}
		logger.Debug("run recorded", "id", id)
	}

	return runErr
}

func openJournal(cfg *config.Config) (*sqlite.Journal, error) {
	path, err := cfg.JournalPath()
	if err != nil || path == "" {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	journal, err := sqlite.Open(sqlite.WithFile(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return journal, nil
}

func serveMetrics(
	addr string,
	registry *prometheus.Registry,
	logger *slog.Logger,
) (func(context.Context) error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())

	return server.Shutdown, nil
}

func printReport(w io.Writer, report *sieve.Report) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("CONSUMER", "STATE", "COUNT", "SUM")
	for _, c := range report.Consumers {
		t.Row(c.Name, c.State.String(), strconv.Itoa(c.Count), strconv.Itoa(c.Sum))
	}

	_, err := fmt.Fprintf(
		w,
		"%s\nproduced %d, residual %s\n",
		t.Render(),
		report.Produced,
		formatItems(report.Residual.Items),
	)
	return err
}

func toJournal(
	report *sieve.Report,
	capacity int,
	inputLen int,
	started time.Time,
	finished time.Time,
	err error,
) sqlite.Run {
	r := sqlite.Run{
		StartedAt:  started,
		FinishedAt: finished,
		Capacity:   capacity,
		Input:      inputLen,
		Produced:   report.Produced,
		Residual:   report.Residual.Items,
		Consumers:  make([]sqlite.ConsumerResult, 0, len(report.Consumers)),
	}
	if err != nil {
		r.Err = err.Error()
	}
	for _, c := range report.Consumers {
		r.Consumers = append(r.Consumers, sqlite.ConsumerResult{
			Name:  c.Name,
			Sum:   c.Sum,
			Count: c.Count,
			State: c.State.String(),
		})
	}
	return r
}

func formatItem(item int) string {
	if item == sieve.Sentinel {
		return sentinelGlyph
	}
	return strconv.Itoa(item)
}

func formatItems(items []int) string {
	s := "["
	for i, item := range items {
		if i > 0 {
			s += " "
		}
		s += formatItem(item)
	}
	return s + "]"
}
