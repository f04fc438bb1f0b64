package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"courtsync/internal/browser"
	"courtsync/internal/logging"
	"courtsync/internal/portal"
	"courtsync/internal/progress"
	"courtsync/internal/report"
	"courtsync/internal/store"
	"courtsync/internal/tribunal"
)

var noProgress bool

const browserStartBudget = 15 * time.Second

// runCmd queries every pending case of one tribunal.
var runCmd = &cobra.Command{
	Use:   "run <STF|STJ>",
	Short: "Query every pending case of a tribunal",
	Long: `Opens a browser session on the tribunal portal and queries each case whose
status is "Em trâmite", one at a time. Extracted fields are written as each
case finishes; an interrupt stops before the next case.`,
	Args: cobra.ExactArgs(1),
	RunE: runTribunal,
}

func parseTribunalArg(arg string) (portal.Tribunal, error) {
	return portal.ParseTribunal(strings.ToUpper(strings.TrimSpace(arg)))
}

// commandContext returns the context cobra attached to cmd, or Background for
// commands invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func openStore() (*store.SQLStore, error) {
	return store.Open(cfg.Store.Path, cfg.Store.Driver, logs.Get(logging.CategoryStore))
}

func runTribunal(cmd *cobra.Command, args []string) error {
	t, err := parseTribunalArg(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	b, err := browser.New(cfg.BrowserConfig(), logs.Get(logging.CategoryBrowser))
	if err != nil {
		return err
	}
	timer := logging.StartTimer(logs.Get(logging.CategoryBrowser), "browser start")
	if err := b.Start(ctx); err != nil {
		return portal.Errorf(portal.KindSessionFatal, "start browser", err)
	}
	timer.StopWithThreshold(browserStartBudget)
	defer func() {
		if err := b.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()

	adapter, err := tribunal.New(t, cfg.Settings(t), logs.Get(logging.CategoryPortal))
	if err != nil {
		return err
	}

	stats, err := execute(ctx, b, adapter, st, cmd.OutOrStdout())
	if stats != nil {
		printReport(cmd.OutOrStdout(), report.Run(*stats))
	}
	if errors.Is(err, portal.ErrStopped) {
		logger.Info("Run stopped on request", zap.String("tribunal", string(t)))
		return nil
	}
	return err
}

// execute runs the orchestrator next to its progress observer. Either side
// failing cancels the other; the orchestrator closes the channel on return.
// Quitting the display stops the run after the case on screen.
func execute(ctx context.Context, d portal.Driver, a portal.Adapter, rs portal.RecordStore, out io.Writer) (*portal.RunStats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan portal.ProgressEvent, 16)
	orch := portal.NewOrchestrator(d, a, rs, cfg.Options(), logs.Get(logging.CategoryOrchestrator)).
		WithFieldLogger(logs.Get(logging.CategoryExtract)).
		WithProgress(events)

	g, gctx := errgroup.WithContext(runCtx)
	var stats *portal.RunStats
	g.Go(func() error {
		var err error
		stats, err = orch.Run(gctx)
		return err
	})
	g.Go(func() error {
		if noProgress {
			progress.LogSink(events, logs.Get(logging.CategoryProgress))
			return nil
		}
		_, err := progress.Run(gctx, events, orch.Stop, tea.WithOutput(out))
		return err
	})

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("run %s: %w", a.Tribunal(), err)
	}
	return stats, nil
}

func printReport(w io.Writer, md string) {
	if plainReport {
		fmt.Fprintln(w, md)
		return
	}
	rendered, err := report.Render(md, 80)
	if err != nil {
		logs.Get(logging.CategoryReport).Warn("Report rendering failed", zap.Error(err))
		fmt.Fprintln(w, md)
		return
	}
	fmt.Fprint(w, rendered)
}
