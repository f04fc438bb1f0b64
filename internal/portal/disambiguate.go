package portal

import (
	"strings"
	"time"
)

// FilingDateLayout is the day/month/year format portals use in listings.
const FilingDateLayout = "02/01/2006"

// SelectMostRecent picks the candidate with the latest filing date.
// Candidates whose date does not parse are skipped. When several share the
// latest date the one listed first wins. ErrNoCandidates is returned when
// nothing parses.
func SelectMostRecent(candidates []Candidate) (Candidate, error) {
	var (
		best     Candidate
		bestDate time.Time
		found    bool
	)
	for _, c := range candidates {
		d, err := time.Parse(FilingDateLayout, strings.TrimSpace(c.Filed))
		if err != nil {
			continue
		}
		if !found || d.After(bestDate) {
			best, bestDate, found = c, d, true
		}
	}
	if !found {
		return Candidate{}, ErrNoCandidates
	}
	return best, nil
}
