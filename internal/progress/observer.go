package progress

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"courtsync/internal/portal"
)

// Run shows the display until events is closed and returns the final tally.
// Events left after the display stops are drained so the producer never
// blocks on an abandoned channel.
func Run(ctx context.Context, events <-chan portal.ProgressEvent, onCancel func(), opts ...tea.ProgramOption) (portal.RunStats, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithoutSignalHandler()}, opts...)
	p := tea.NewProgram(NewModel(events, onCancel), opts...)

	final, err := p.Run()
	var stats portal.RunStats
	if m, ok := final.(Model); ok {
		stats = m.Stats()
	}
	for ev := range events {
		stats = ev.Stats
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return stats, fmt.Errorf("progress display: %w", err)
	}
	return stats, nil
}

// LogSink logs every finished case and returns the final tally once events
// is closed.
func LogSink(events <-chan portal.ProgressEvent, logger *zap.Logger) portal.RunStats {
	if logger == nil {
		logger = zap.NewNop()
	}
	var stats portal.RunStats
	for ev := range events {
		stats = ev.Stats
		switch ev.Kind {
		case portal.EventRunStarted:
			logger.Info("Run started", zap.String("tribunal", string(ev.Stats.Tribunal)), zap.Int("cases", ev.Total))
		case portal.EventCaseFinished:
			if ev.Outcome == nil {
				continue
			}
			fields := []zap.Field{
				zap.Int("index", ev.Index+1),
				zap.Int("total", ev.Total),
				zap.String("case", ev.Case.ID),
				zap.String("terminal", ev.Outcome.Terminal.String()),
			}
			if ev.Outcome.Detected != "" {
				fields = append(fields, zap.String("detected", string(ev.Outcome.Detected)))
			}
			if ev.Outcome.Err != nil {
				fields = append(fields, zap.Error(ev.Outcome.Err))
			}
			logger.Info("Case finished", fields...)
		case portal.EventRunFinished:
			logger.Info("Run finished",
				zap.Int("success", ev.Stats.Success),
				zap.Int("not_found", ev.Stats.NotFound),
				zap.Int("errors", ev.Stats.Errors),
				zap.String("message", ev.Message))
		}
	}
	return stats
}
