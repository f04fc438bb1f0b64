package portal

import (
	"context"
	"time"
)

// Adapter carries everything that differs between tribunals: how a query is
// entered, which indicators classify the outcome, how a multiple listing is
// read and which probe chains fill the fields.
type Adapter interface {
	Tribunal() Tribunal
	// Open brings the portal to its query form. A failure here is session fatal.
	Open(ctx context.Context, d Driver) error
	// Submit enters the case identifier and waits for the outcome to render.
	Submit(ctx context.Context, d Driver, c CaseRecord) error
	Indicators() Indicators
	// Candidates lists the entries of a multiple-result page in display order.
	Candidates(ctx context.Context, p *Page) ([]Candidate, error)
	// Choose opens the detail view of a candidate.
	Choose(ctx context.Context, d Driver, c Candidate) error
	// Expand reveals detail view sections the extractor reads. Failures are
	// logged and extraction still runs.
	Expand(ctx context.Context, d Driver) error
	Extractor(c CaseRecord) Extractor
	// NoMovement is the movement literal stored for cases the portal does not know.
	NoMovement() string
	// Stamp formats the query timestamp stored with the record.
	Stamp(t time.Time) string
	// Reset returns the portal to a clean query form.
	Reset(ctx context.Context, d Driver) error
}

// RecordStore is the persistence contract the orchestrator writes through.
type RecordStore interface {
	// FetchPending lists records of tribunal whose status equals status.
	FetchPending(ctx context.Context, tribunal Tribunal, status Status) ([]CaseRecord, error)
	// Update applies u to the record addressed by id and tribunal, in a single
	// transaction. Unknown records yield ErrRecordNotFound and nothing is written.
	Update(ctx context.Context, id string, tribunal Tribunal, u CaseUpdate) error
	// LogQuery appends one attempt to the query history.
	LogQuery(ctx context.Context, entry QueryLog) error
}

// NotFoundFields is what gets stored for a case the portal does not know.
func NotFoundFields(noMovement string) Fields {
	return Fields{
		Parties:        SentinelValue,
		Classification: SentinelValue,
		Decision:       SentinelValue,
		Movement:       noMovement,
		Link:           SentinelValue,
	}
}
