// Package report renders run summaries and status distributions as Markdown,
// optionally styled for the terminal with glamour.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"courtsync/internal/portal"
)

// Run writes the summary of one finished run.
func Run(s portal.RunStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s: %s\n\n", shortID(s.RunID), s.Tribunal)
	if !s.Started.IsZero() {
		fmt.Fprintf(&b, "Started %s, took %s.\n\n", s.Started.Format(time.DateTime), s.Duration().Round(time.Second))
	}

	b.WriteString("| Outcome | Cases |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Success | %d |\n", s.Success)
	fmt.Fprintf(&b, "| Not found | %d |\n", s.NotFound)
	fmt.Fprintf(&b, "| Error | %d |\n", s.Errors)
	fmt.Fprintf(&b, "| **Processed** | **%d / %d** |\n\n", s.Processed(), s.Total)

	fmt.Fprintf(&b, "- Success rate: %.1f%%\n", s.SuccessRate())
	fmt.Fprintf(&b, "- Multiple results resolved: %d\n", s.Multiple)
	fmt.Fprintf(&b, "- Habeas corpus: %d\n", s.HabeasCorpus)
	fmt.Fprintf(&b, "- Status changes suggested: %d\n", s.StatusChanges)

	if statuses := s.DetectedStatuses(); len(statuses) > 0 {
		b.WriteString("\n## Detected status\n\n| Status | Cases |\n|---|---:|\n")
		for _, st := range statuses {
			fmt.Fprintf(&b, "| %s | %d |\n", st, s.Detected[st])
		}
	}

	if len(s.ErrorKinds) > 0 {
		kinds := make([]string, 0, len(s.ErrorKinds))
		for k := range s.ErrorKinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		b.WriteString("\n## Errors\n\n| Kind | Cases |\n|---|---:|\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "| %s | %d |\n", k, s.ErrorKinds[k])
		}
	}
	return b.String()
}

// Distribution writes the stored status distribution of a tribunal.
func Distribution(t portal.Tribunal, counts map[portal.Status]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s status distribution\n\n", t)
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		b.WriteString("No records.\n")
		return b.String()
	}

	b.WriteString("| Status | Cases | Share |\n|---|---:|---:|\n")
	seen := make(map[portal.Status]bool, len(counts))
	row := func(st portal.Status) {
		n := counts[st]
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", st, n, float64(n)*100/float64(total))
		seen[st] = true
	}
	for _, st := range portal.Statuses {
		if counts[st] > 0 {
			row(st)
		}
	}
	// Statuses outside the taxonomy can come from seeded data.
	var other []string
	for st := range counts {
		if !seen[st] && counts[st] > 0 {
			other = append(other, string(st))
		}
	}
	sort.Strings(other)
	for _, st := range other {
		row(portal.Status(st))
	}
	fmt.Fprintf(&b, "| **Total** | **%d** | |\n", total)
	return b.String()
}

// Render styles md for the terminal, wrapping at width columns.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
