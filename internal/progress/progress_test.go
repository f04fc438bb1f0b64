package progress

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"courtsync/internal/portal"
)

func stats(success, notFound, errs int) portal.RunStats {
	return portal.RunStats{Tribunal: portal.TribunalSTJ, Total: 3, Success: success, NotFound: notFound, Errors: errs}
}

// script replays a short run: three cases, one of each terminal.
func script() []portal.ProgressEvent {
	c := func(id string) portal.CaseRecord { return portal.CaseRecord{ID: id, Tribunal: portal.TribunalSTJ} }
	return []portal.ProgressEvent{
		{Kind: portal.EventRunStarted, Total: 3, Stats: stats(0, 0, 0)},
		{Kind: portal.EventCaseStarted, Index: 0, Total: 3, Case: c("111"), Stats: stats(0, 0, 0)},
		{Kind: portal.EventCaseFinished, Index: 0, Total: 3, Case: c("111"), Stats: stats(1, 0, 0),
			Outcome: &portal.Outcome{Case: c("111"), Terminal: portal.TerminalSuccess, Detected: portal.StatusFinal}},
		{Kind: portal.EventCaseFinished, Index: 1, Total: 3, Case: c("222"), Stats: stats(1, 1, 0),
			Outcome: &portal.Outcome{Case: c("222"), Terminal: portal.TerminalNotFound}},
		{Kind: portal.EventCaseFinished, Index: 2, Total: 3, Case: c("333"), Stats: stats(1, 1, 1),
			Outcome: &portal.Outcome{Case: c("333"), Terminal: portal.TerminalError, Err: portal.Errorf(portal.KindSubmit, "submit", errors.New("boom"))}},
		{Kind: portal.EventRunFinished, Total: 3, Stats: stats(1, 1, 1)},
	}
}

func feed(events []portal.ProgressEvent) <-chan portal.ProgressEvent {
	ch := make(chan portal.ProgressEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestModelAppliesEvents(t *testing.T) {
	m := NewModel(nil, nil)
	evs := script()

	next, _ := m.Update(eventMsg(evs[1]))
	m = next.(Model)
	assert.Contains(t, m.View(), "querying 111")
	assert.Equal(t, 0.0, m.Percent())

	for _, ev := range evs[2:] {
		next, _ = m.Update(eventMsg(ev))
		m = next.(Model)
	}
	view := m.View()
	assert.NotContains(t, view, "querying")
	assert.Contains(t, view, "3/3")
	assert.Contains(t, view, string(portal.StatusFinal))
	assert.Contains(t, view, "222  not found")
	assert.Contains(t, view, "333  submit")
	assert.Equal(t, 1.0, m.Percent())

	next, cmd := m.Update(doneMsg{})
	m = next.(Model)
	assert.True(t, m.Done())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelKeepsRecentLines(t *testing.T) {
	m := NewModel(nil, nil)
	for i := 0; i < recentLimit+5; i++ {
		m.apply(portal.ProgressEvent{Kind: portal.EventCaseFinished, Outcome: &portal.Outcome{Terminal: portal.TerminalNotFound}})
	}
	assert.Len(t, m.recent, recentLimit)
}

func TestModelCancelKey(t *testing.T) {
	cancelled := false
	m := NewModel(nil, func() { cancelled = true })
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, cancelled)
	assert.Contains(t, next.(Model).View(), "stopping after the current case")
}

func TestWaitForEventEndsOnClose(t *testing.T) {
	ch := make(chan portal.ProgressEvent)
	close(ch)
	assert.Equal(t, doneMsg{}, waitForEvent(ch)())
}

func TestLogSink(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.InfoLevel)
	final := LogSink(feed(script()), zap.New(core))

	assert.Equal(t, stats(1, 1, 1), final)
	assert.Equal(t, 3, logs.FilterMessage("Case finished").Len())
	assert.Equal(t, 1, logs.FilterMessage("Run finished").Len())

	failed := logs.FilterMessage("Case finished").FilterField(zap.String("case", "333")).All()
	require.Len(t, failed, 1)
	assert.Equal(t, "error", failed[0].ContextMap()["terminal"])
}

func TestRunHeadless(t *testing.T) {
	var out bytes.Buffer
	final, err := Run(context.Background(), feed(script()), nil,
		tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutRenderer())
	require.NoError(t, err)
	assert.Equal(t, 3, final.Processed())
}

func TestRunDrainsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan portal.ProgressEvent)
	go func() {
		defer close(ch)
		for _, ev := range script() {
			ch <- ev
		}
	}()
	final, err := Run(ctx, ch, nil, tea.WithInput(nil), tea.WithOutput(&bytes.Buffer{}), tea.WithoutRenderer())
	require.NoError(t, err)
	assert.Equal(t, portal.TribunalSTJ, final.Tribunal)
}
