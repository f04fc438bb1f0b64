package portal

// EventKind tells observers what happened.
type EventKind int

const (
	EventRunStarted EventKind = iota
	EventCaseStarted
	EventCaseFinished
	EventRunFinished
)

func (k EventKind) String() string {
	switch k {
	case EventRunStarted:
		return "run_started"
	case EventCaseStarted:
		return "case_started"
	case EventCaseFinished:
		return "case_finished"
	case EventRunFinished:
		return "run_finished"
	}
	return "unknown"
}

// ProgressEvent is pushed to observers. Events carry copies; observers never
// touch orchestrator state.
type ProgressEvent struct {
	Kind    EventKind
	Index   int
	Total   int
	Case    CaseRecord
	Outcome *Outcome
	Stats   RunStats
	Message string
}
