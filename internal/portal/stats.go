package portal

import (
	"sort"
	"time"
)

// RunStats accumulates outcomes over one run.
type RunStats struct {
	RunID        string
	Tribunal     Tribunal
	Total        int
	Success      int
	NotFound     int
	Errors       int
	Multiple     int
	HabeasCorpus int
	// StatusChanges counts outcomes whose detected status differs from the stored one.
	StatusChanges int
	Detected      map[Status]int
	ErrorKinds    map[string]int
	Started       time.Time
	Finished      time.Time
}

// NewRunStats starts an empty tally.
func NewRunStats(runID string, t Tribunal, total int, started time.Time) *RunStats {
	return &RunStats{
		RunID:      runID,
		Tribunal:   t,
		Total:      total,
		Detected:   make(map[Status]int),
		ErrorKinds: make(map[string]int),
		Started:    started,
	}
}

// Record counts one terminal outcome.
func (s *RunStats) Record(o Outcome) {
	switch o.Terminal {
	case TerminalSuccess:
		s.Success++
	case TerminalNotFound:
		s.NotFound++
	default:
		s.Errors++
		if o.Err != nil {
			s.ErrorKinds[KindOf(o.Err).String()]++
		}
	}
	if o.Multiple {
		s.Multiple++
	}
	if IsHabeasCorpus(o.Case.ID) {
		s.HabeasCorpus++
	}
	if o.Detected != "" {
		s.Detected[o.Detected]++
		if o.StatusChanged() {
			s.StatusChanges++
		}
	}
}

// Snapshot copies the tally so it can leave the orchestrator goroutine.
func (s *RunStats) Snapshot() RunStats {
	c := *s
	c.Detected = make(map[Status]int, len(s.Detected))
	for k, v := range s.Detected {
		c.Detected[k] = v
	}
	c.ErrorKinds = make(map[string]int, len(s.ErrorKinds))
	for k, v := range s.ErrorKinds {
		c.ErrorKinds[k] = v
	}
	return c
}

// Processed is the number of cases that reached a terminal state.
func (s *RunStats) Processed() int {
	return s.Success + s.NotFound + s.Errors
}

// SuccessRate is the share of processed cases that were persisted, in percent.
func (s *RunStats) SuccessRate() float64 {
	n := s.Processed()
	if n == 0 {
		return 0
	}
	return float64(s.Success+s.NotFound) * 100 / float64(n)
}

// Duration is the wall time of the run so far.
func (s *RunStats) Duration() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// DetectedStatuses lists detected statuses in taxonomy order.
func (s *RunStats) DetectedStatuses() []Status {
	out := make([]Status, 0, len(s.Detected))
	for st := range s.Detected {
		out = append(out, st)
	}
	order := make(map[Status]int, len(Statuses))
	for i, st := range Statuses {
		order[st] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
