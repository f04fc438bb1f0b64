package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes the orchestrator.
type Options struct {
	// MaxRetries bounds how often a case is retried after a transient failure.
	MaxRetries int
	RetryDelay time.Duration
	// SettleDelay is waited before an ambiguous page is classified again.
	SettleDelay time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the stock retry policy.
func DefaultOptions() Options {
	return Options{
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
		SettleDelay: 2 * time.Second,
		Now:         time.Now,
	}
}

// Orchestrator runs the worklist of one tribunal through a single session,
// one case at a time.
type Orchestrator struct {
	driver   Driver
	adapter  Adapter
	store    RecordStore
	opts     Options
	logger   *zap.Logger
	fields   *zap.Logger
	progress chan<- ProgressEvent

	stop     chan struct{}
	stopOnce sync.Once
}

// NewOrchestrator wires a session, an adapter and a store.
func NewOrchestrator(d Driver, a Adapter, s RecordStore, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		driver:  d,
		adapter: a,
		store:   s,
		opts:    opts,
		logger:  logger.With(zap.String("tribunal", string(a.Tribunal()))),
		fields:  logger.With(zap.String("tribunal", string(a.Tribunal()))),
		stop:    make(chan struct{}),
	}
}

// WithProgress attaches an observer channel. Run closes it when it returns.
func (o *Orchestrator) WithProgress(ch chan<- ProgressEvent) *Orchestrator {
	o.progress = ch
	return o
}

// WithFieldLogger routes field extraction misses to logger.
func (o *Orchestrator) WithFieldLogger(logger *zap.Logger) *Orchestrator {
	if logger != nil {
		o.fields = logger.With(zap.String("tribunal", string(o.adapter.Tribunal())))
	}
	return o
}

// Stop asks Run to return once the current case is finished. It is safe to
// call more than once and from any goroutine.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Run fetches the pending worklist and processes every case. Per-case
// failures are counted, never returned. The returned error is session fatal,
// a store failure while fetching the worklist, ErrStopped after Stop, or the
// context's error when the run was interrupted.
func (o *Orchestrator) Run(ctx context.Context) (*RunStats, error) {
	if o.progress != nil {
		defer close(o.progress)
	}
	t := o.adapter.Tribunal()

	cases, err := o.store.FetchPending(ctx, t, StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("fetch worklist: %w", err)
	}
	stats := NewRunStats(uuid.NewString(), t, len(cases), o.opts.Now())
	o.logger.Info("Run started", zap.String("run_id", stats.RunID), zap.Int("cases", len(cases)))

	if len(cases) == 0 {
		stats.Finished = o.opts.Now()
		o.emit(ctx, ProgressEvent{Kind: EventRunFinished, Stats: stats.Snapshot(), Message: "no pending cases"})
		return stats, nil
	}

	if err := o.adapter.Open(ctx, o.driver); err != nil {
		stats.Finished = o.opts.Now()
		return stats, &Error{Kind: KindSessionFatal, Op: "open portal", Err: err}
	}
	o.emit(ctx, ProgressEvent{Kind: EventRunStarted, Total: len(cases), Stats: stats.Snapshot()})

	var runErr error
	for i, c := range cases {
		if err := o.interrupted(ctx); err != nil {
			o.logger.Warn("Run interrupted", zap.Int("processed", i), zap.Int("remaining", len(cases)-i), zap.Error(err))
			runErr = err
			break
		}
		o.emit(ctx, ProgressEvent{Kind: EventCaseStarted, Index: i, Total: len(cases), Case: c, Stats: stats.Snapshot()})

		out := o.Process(ctx, c)
		stats.Record(out)
		o.emit(ctx, ProgressEvent{Kind: EventCaseFinished, Index: i, Total: len(cases), Case: c, Outcome: &out, Stats: stats.Snapshot()})

		if IsSessionFatal(out.Err) {
			runErr = out.Err
			break
		}
	}

	if runErr == nil {
		// Cancelled while the last case ran.
		runErr = ctx.Err()
	}

	stats.Finished = o.opts.Now()
	o.logger.Info("Run finished",
		zap.String("run_id", stats.RunID),
		zap.Int("success", stats.Success),
		zap.Int("not_found", stats.NotFound),
		zap.Int("errors", stats.Errors),
		zap.Int("multiple", stats.Multiple),
		zap.Int("status_changes", stats.StatusChanges),
		zap.Duration("duration", stats.Duration()),
	)
	o.emit(ctx, ProgressEvent{Kind: EventRunFinished, Total: len(cases), Stats: stats.Snapshot()})
	return stats, runErr
}

// Process takes one case from submission to a terminal outcome. The portal is
// reset afterwards whatever the outcome.
func (o *Orchestrator) Process(ctx context.Context, c CaseRecord) Outcome {
	start := o.opts.Now()
	log := o.logger.With(zap.String("case", c.ID))

	var out Outcome
	for attempt := 0; ; attempt++ {
		out = o.attempt(ctx, c, log)
		if out.Err == nil || !IsTransient(out.Err) || attempt >= o.opts.MaxRetries {
			break
		}
		log.Warn("Transient failure, retrying", zap.Int("attempt", attempt+1), zap.Error(out.Err))
		o.reset(ctx, log)
		if err := Sleep(ctx, o.opts.RetryDelay); err != nil {
			out.Err = err
			break
		}
	}

	if out.Err != nil {
		out.Terminal = TerminalError
		if out.Artifact.IsZero() && !errors.Is(out.Err, context.Canceled) {
			out.Artifact = o.snapshot(ctx, c, "error", log)
		}
		log.Error("Case failed",
			zap.String("kind", KindOf(out.Err).String()),
			zap.String("artifact", out.Artifact.String()),
			zap.Error(out.Err),
		)
	}
	out.Duration = o.opts.Now().Sub(start)

	o.logQuery(ctx, out, log)
	o.reset(ctx, log)
	return out
}

func (o *Orchestrator) attempt(ctx context.Context, c CaseRecord, log *zap.Logger) Outcome {
	out := Outcome{AttemptID: uuid.NewString(), Case: c}
	fail := func(kind Kind, op string, err error) Outcome {
		if pe := new(Error); errors.As(err, &pe) {
			out.Err = err
			return out
		}
		if IsTransient(err) {
			kind = KindTransient
		}
		out.Err = &Error{Kind: kind, Op: op, Case: c.ID, Err: err}
		return out
	}

	if err := o.adapter.Submit(ctx, o.driver, c); err != nil {
		return fail(KindSubmit, "submit", err)
	}

	page, state, err := o.classify(ctx, log)
	if err != nil {
		return fail(KindTransient, "classify", err)
	}
	out.State = state
	log.Debug("Classified", zap.Stringer("state", state))

	switch state {
	case StateAmbiguous:
		out.Artifact = o.snapshot(ctx, c, "ambiguous", log)
		return fail(KindAmbiguous, "classify", fmt.Errorf("page %s matched no known layout", page.URL))

	case StateNotFound:
		out.Terminal = TerminalNotFound
		out.Fields = NotFoundFields(o.adapter.NoMovement())
		return o.persist(ctx, out, log)

	case StateMultiple:
		out.Multiple = true
		candidates, err := o.adapter.Candidates(ctx, page)
		if err != nil {
			return fail(KindDisambiguation, "list candidates", err)
		}
		chosen, err := SelectMostRecent(candidates)
		if err != nil {
			return fail(KindDisambiguation, "disambiguate", err)
		}
		log.Info("Multiple results, opening most recent",
			zap.Int("candidates", len(candidates)),
			zap.Int("position", chosen.Position),
			zap.String("filed", chosen.Filed),
		)
		if err := o.adapter.Choose(ctx, o.driver, chosen); err != nil {
			return fail(KindDisambiguation, "open candidate", err)
		}
		out.State = StateFound
	}

	if err := o.adapter.Expand(ctx, o.driver); err != nil {
		log.Warn("Could not expand detail view", zap.Error(err))
	}
	page, err = LoadPage(ctx, o.driver)
	if err != nil {
		return fail(KindTransient, "load detail", err)
	}

	fields, misses := o.adapter.Extractor(c).Extract(ctx, page)
	out.Fields = fields
	out.Misses = misses
	for _, m := range misses {
		o.fields.Warn("Field not extracted", zap.String("case", c.ID), zap.String("field", string(m.Field)), zap.Error(m))
	}
	if len(misses) > 0 {
		out.Artifact = o.snapshot(ctx, c, "extract", log)
	}

	// Without movement text there is nothing to derive a status from.
	if !missed(misses, FieldMovement) {
		out.Detected = ClassifyStatus(fields.Movement, c.Status)
	}
	out.Terminal = TerminalSuccess
	return o.persist(ctx, out, log)
}

// classify reads the rendered outcome, waiting once for an ambiguous page to
// settle before giving up on it.
func (o *Orchestrator) classify(ctx context.Context, log *zap.Logger) (*Page, ResultState, error) {
	ind := o.adapter.Indicators()
	page, err := LoadPage(ctx, o.driver)
	if err != nil {
		return nil, StateAmbiguous, err
	}
	state := ind.Classify(page)
	if state != StateAmbiguous {
		return page, state, nil
	}
	log.Debug("Ambiguous page, waiting to settle", zap.Duration("delay", o.opts.SettleDelay))
	if err := Sleep(ctx, o.opts.SettleDelay); err != nil {
		return page, state, err
	}
	page, err = LoadPage(ctx, o.driver)
	if err != nil {
		return nil, StateAmbiguous, err
	}
	return page, ind.Classify(page), nil
}

func (o *Orchestrator) persist(ctx context.Context, out Outcome, log *zap.Logger) Outcome {
	c := out.Case
	u := CaseUpdate{
		Fields:             out.Fields,
		OmitClassification: IsHabeasCorpus(c.ID),
		QueriedAt:          o.adapter.Stamp(o.opts.Now()),
	}
	if out.Terminal == TerminalSuccess {
		u.SuggestedStatus = out.Detected
	}
	if err := o.store.Update(ctx, c.ID, c.Tribunal, u); err != nil {
		out.Terminal = TerminalError
		out.Err = &Error{Kind: KindPersist, Op: "update", Case: c.ID, Err: err}
		return out
	}
	log.Info("Case persisted",
		zap.Stringer("outcome", out.Terminal),
		zap.String("movement", out.Fields.Movement),
		zap.String("detected", string(out.Detected)),
	)
	return out
}

func (o *Orchestrator) reset(ctx context.Context, log *zap.Logger) {
	// Reset must run even when the case was cancelled.
	rctx := context.WithoutCancel(ctx)
	if err := o.adapter.Reset(rctx, o.driver); err != nil {
		log.Warn("Reset failed", zap.Error(err))
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, c CaseRecord, reason string, log *zap.Logger) ArtifactRef {
	label := fmt.Sprintf("%s_%s_%s", c.Tribunal, NormalizeID(c.ID), reason)
	ref, err := o.driver.Snapshot(context.WithoutCancel(ctx), label)
	if err != nil {
		log.Warn("Snapshot failed", zap.String("label", label), zap.Error(err))
		return ArtifactRef{Label: label}
	}
	return ref
}

func (o *Orchestrator) logQuery(ctx context.Context, out Outcome, log *zap.Logger) {
	entry := QueryLog{
		AttemptID: out.AttemptID,
		CaseID:    out.Case.ID,
		Tribunal:  out.Case.Tribunal,
		State:     out.State.String(),
		Terminal:  out.Terminal.String(),
		Movement:  out.Fields.Movement,
		Decision:  out.Fields.Decision,
		Detected:  out.Detected,
		CreatedAt: o.opts.Now(),
	}
	if !out.Artifact.IsZero() {
		entry.Artifact = out.Artifact.String()
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	if err := o.store.LogQuery(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("Query log write failed", zap.Error(err))
	}
}

// emit delivers an event when an observer is attached. A cancelled context
// drops the event instead of blocking.
func (o *Orchestrator) emit(ctx context.Context, ev ProgressEvent) {
	if o.progress == nil {
		return
	}
	select {
	case o.progress <- ev:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-o.stop:
		return ErrStopped
	default:
		return nil
	}
}

func missed(misses []FieldMiss, f FieldName) bool {
	for _, m := range misses {
		if m.Field == f {
			return true
		}
	}
	return false
}
