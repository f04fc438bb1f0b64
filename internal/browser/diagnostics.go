package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"courtsync/internal/portal"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Diagnostics writes screenshot and HTML captures under Dir.
type Diagnostics struct {
	Dir string
	Now func() time.Time
}

// NewDiagnostics returns a writer rooted at dir.
func NewDiagnostics(dir string) *Diagnostics {
	if dir == "" {
		dir = "diagnostics"
	}
	return &Diagnostics{Dir: dir, Now: time.Now}
}

// Write stores png and html under a timestamped name derived from label.
// Either payload may be empty; an artifact is returned for whatever was written.
func (d *Diagnostics) Write(label string, png []byte, html string) (portal.ArtifactRef, error) {
	ref := portal.ArtifactRef{Label: label}
	if len(png) == 0 && html == "" {
		return ref, fmt.Errorf("snapshot %s: nothing captured", label)
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return ref, fmt.Errorf("create diagnostics dir: %w", err)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	base := filepath.Join(d.Dir, fmt.Sprintf("%s_%s", unsafeLabel.ReplaceAllString(label, "_"), now().Format("20060102_150405")))

	if len(png) > 0 {
		path := base + ".png"
		if err := os.WriteFile(path, png, 0644); err != nil {
			return ref, fmt.Errorf("write screenshot: %w", err)
		}
		ref.Screenshot = path
	}
	if html != "" {
		path := base + ".html"
		if err := os.WriteFile(path, []byte(html), 0644); err != nil {
			return ref, fmt.Errorf("write html dump: %w", err)
		}
		ref.HTML = path
	}
	return ref, nil
}
