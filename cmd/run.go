package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/adalundhe/gridvar/core/audit"
	"github.com/adalundhe/gridvar/core/config"
	"github.com/adalundhe/gridvar/core/scenario"
	"github.com/adalundhe/gridvar/core/storage"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Replay a variant scenario",
	Long: `Build the network described by a scenario file, replay its variant steps and
print the resulting values and change history of every variant.

With --watch the scenario is replayed whenever the file or the configuration
changes, until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

var (
	runAuditPath string
	runWatch     bool
	runFormat    string
	runMetrics   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runAuditPath, "audit", "", "Record change events to this SQLite database (default from config)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Replay whenever the scenario or config changes")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "text", "Output format (text,json)")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false, "Print Prometheus metrics of the run to stderr")
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, dirs, err := loadConfig()
	if err != nil {
		return err
	}
	defer mgr.Close()

	logger := mgr.Get().Log.NewLogger(cmd.ErrOrStderr())
	r := &scenarioRun{
		path:    args[0],
		dirs:    dirs,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		metrics: cmd.ErrOrStderr(),
	}

	if !runWatch {
		return r.once(ctx, mgr.Get())
	}
	return r.watch(ctx, mgr)
}

type scenarioRun struct {
	path    string
	dirs    *storage.Dirs
	logger  *slog.Logger
	out     io.Writer
	metrics io.Writer
}

func (r *scenarioRun) once(ctx context.Context, cfg *config.Config) error {
	s, err := scenario.Load(r.path)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []scenario.Option{
		scenario.WithLogger(r.logger),
		scenario.WithRegisterer(reg),
	}

	if path := auditPath(runAuditPath, cfg, r.dirs); path != "" {
		sink, err := audit.OpenSQLiteSink(audit.SinkConfig{
			Path:         path,
			Network:      s.Network,
			CacheEntries: cfg.Audit.CacheEntries,
			Logger:       r.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer func() {
			if err := sink.LastError(); err != nil {
				r.logger.Warn("audit sink dropped events", slog.String("error", err.Error()))
			}
			sink.Close()
		}()
		opts = append(opts, scenario.WithListener(sink))
		r.logger.Info("recording change events", slog.String("path", path), slog.String("run", sink.RunID()))
	}

	result, err := scenario.NewRunner(cfg, opts...).Run(ctx, s)
	if err != nil {
		return err
	}

	if err := writeResult(r.out, result, runFormat); err != nil {
		return err
	}
	if runMetrics {
		return writeMetrics(r.metrics, reg)
	}
	return nil
}

// watch replays the scenario on every write to it and on every config
// reload. A failing replay is logged and watching goes on.
func (r *scenarioRun) watch(ctx context.Context, mgr *config.Manager) error {
	target, err := filepath.Abs(r.path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch scenario: %w", err)
	}

	reload := make(chan struct{}, 1)
	mgr.OnChange(func(*config.Config) {
		select {
		case reload <- struct{}{}:
		default:
		}
	})
	if err := mgr.Watch(ctx); err != nil {
		r.logger.Warn("config will not be reloaded", slog.String("error", err.Error()))
	}

	replay := func(reason string) {
		r.logger.Info("replaying scenario", slog.String("path", r.path), slog.String("reason", reason))
		if err := r.once(ctx, mgr.Get()); err != nil {
			r.logger.Error("scenario failed", slog.String("error", err.Error()))
		}
	}
	replay("start")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != target {
				continue
			}
			replay("scenario changed")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("scenario watcher error", slog.String("error", err.Error()))
		case <-reload:
			replay("config changed")
		}
	}
}

func writeResult(w io.Writer, result *scenario.Result, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "", "text":
		return writeResultText(w, result)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeResultText(w io.Writer, result *scenario.Result) error {
	fmt.Fprintf(w, "network %s (instance %s), %d changes recorded\n", result.Network, result.InstanceID, result.Sequence)

	for _, v := range result.Variants {
		header := "variant " + v.ID
		if v.Override {
			header += " (own history)"
		}
		fmt.Fprintf(w, "\n%s\n", header)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, id := range v.EntityIDs() {
			values := v.Values[id]
			attrs := make([]string, 0, len(values))
			for attr := range values {
				attrs = append(attrs, attr)
			}
			sort.Strings(attrs)

			pairs := make([]string, len(attrs))
			for i, attr := range attrs {
				pairs[i] = fmt.Sprintf("%s=%v", attr, values[attr])
			}
			fmt.Fprintf(tw, "  %s\t%s\n", id, strings.Join(pairs, " "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(w, "  changes:")
		for _, c := range v.Changes {
			fmt.Fprintf(w, "    %s\n", c)
		}
	}
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
