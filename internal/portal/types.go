// Package portal implements the portal query and classification engine: the
// per-case state machine that drives a court portal, classifies the result
// page, extracts case fields and derives the advisory case status.
package portal

import (
	"fmt"
	"strings"
	"time"
)

// Tribunal identifies a court system. Each tribunal has its own adapter.
type Tribunal string

const (
	TribunalSTF Tribunal = "STF"
	TribunalSTJ Tribunal = "STJ"
)

// Tribunals lists every supported tribunal.
var Tribunals = []Tribunal{TribunalSTF, TribunalSTJ}

// ParseTribunal accepts a tribunal name in any case.
func ParseTribunal(s string) (Tribunal, error) {
	t := Tribunal(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Tribunals {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tribunal %q (valid: %v)", s, Tribunals)
}

// Status is the case lifecycle state.
type Status string

const (
	StatusInProgress Status = "Em trâmite"
	StatusReceived   Status = "Recebido"
	StatusDischarged Status = "Baixa"
	StatusFinal      Status = "Trânsito"
)

// Statuses lists the status taxonomy in display order.
var Statuses = []Status{StatusInProgress, StatusReceived, StatusDischarged, StatusFinal}

// Valid reports whether s is one of the taxonomy values.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// ResultState is the classification of a rendered query outcome.
type ResultState int

const (
	// StatePending means no outcome has been classified yet.
	StatePending ResultState = iota
	StateAmbiguous
	StateFound
	StateNotFound
	StateMultiple
)

func (s ResultState) String() string {
	switch s {
	case StateFound:
		return "found"
	case StateNotFound:
		return "not_found"
	case StateMultiple:
		return "multiple"
	case StateAmbiguous:
		return "ambiguous"
	}
	return "pending"
}

// Terminal is the end state of one case attempt.
type Terminal int

const (
	TerminalError Terminal = iota
	TerminalSuccess
	TerminalNotFound
)

func (t Terminal) String() string {
	switch t {
	case TerminalSuccess:
		return "success"
	case TerminalNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Fields are the structured attributes extracted from a case detail view.
type Fields struct {
	Parties        string `json:"parties" yaml:"parties"`
	Classification string `json:"classification" yaml:"classification"`
	Decision       string `json:"decision" yaml:"decision"`
	Movement       string `json:"movement" yaml:"movement"`
	Link           string `json:"link" yaml:"link"`
}

// FieldName names one slot of Fields.
type FieldName string

const (
	FieldParties        FieldName = "parties"
	FieldClassification FieldName = "classification"
	FieldDecision       FieldName = "decision"
	FieldMovement       FieldName = "movement"
	FieldLink           FieldName = "link"
)

// Set assigns the named slot.
func (f *Fields) Set(name FieldName, value string) {
	switch name {
	case FieldParties:
		f.Parties = value
	case FieldClassification:
		f.Classification = value
	case FieldDecision:
		f.Decision = value
	case FieldMovement:
		f.Movement = value
	case FieldLink:
		f.Link = value
	}
}

// Get returns the named slot.
func (f Fields) Get(name FieldName) string {
	switch name {
	case FieldParties:
		return f.Parties
	case FieldClassification:
		return f.Classification
	case FieldDecision:
		return f.Decision
	case FieldMovement:
		return f.Movement
	case FieldLink:
		return f.Link
	}
	return ""
}

// CaseRecord is one lawsuit as held by the record store. ID plus Tribunal
// address exactly one record.
type CaseRecord struct {
	ID              string    `json:"id" yaml:"id"`
	Tribunal        Tribunal  `json:"tribunal" yaml:"tribunal"`
	Status          Status    `json:"status" yaml:"status"`
	SuggestedStatus Status    `json:"suggested_status,omitempty" yaml:"suggested_status,omitempty"`
	Fields          Fields    `json:"fields" yaml:"fields"`
	QueriedAt       string    `json:"queried_at,omitempty" yaml:"queried_at,omitempty"`
	LoadedAt        time.Time `json:"-" yaml:"-"`
}

// CaseUpdate is the partial write applied to one record after a query.
type CaseUpdate struct {
	Fields Fields
	// OmitClassification leaves the stored classification untouched.
	OmitClassification bool
	// SuggestedStatus is advisory; empty leaves the stored value untouched.
	SuggestedStatus Status
	QueriedAt       string
}

// Candidate is one entry of a multiple-result listing.
type Candidate struct {
	Position int
	Filed    string
	Label    string
	Href     string
}

// ArtifactRef points at a diagnostic capture of the interface state.
type ArtifactRef struct {
	Label      string `json:"label"`
	Screenshot string `json:"screenshot,omitempty"`
	HTML       string `json:"html,omitempty"`
}

// IsZero reports whether no artifact was captured.
func (a ArtifactRef) IsZero() bool {
	return a.Screenshot == "" && a.HTML == ""
}

func (a ArtifactRef) String() string {
	if a.IsZero() {
		return "-"
	}
	if a.Screenshot != "" {
		return a.Screenshot
	}
	return a.HTML
}

// Outcome is the result of one case attempt.
type Outcome struct {
	AttemptID string
	Case      CaseRecord
	State     ResultState
	Terminal  Terminal
	Fields    Fields
	Misses    []FieldMiss
	Detected  Status
	Multiple  bool
	Artifact  ArtifactRef
	Err       error
	Duration  time.Duration
}

// StatusChanged reports whether the detected status differs from the stored one.
func (o Outcome) StatusChanged() bool {
	return o.Detected != "" && o.Detected != o.Case.Status
}

// QueryLog is the history row written for every case attempt.
type QueryLog struct {
	AttemptID string
	CaseID    string
	Tribunal  Tribunal
	State     string
	Terminal  string
	Movement  string
	Decision  string
	Detected  Status
	Artifact  string
	Error     string
	CreatedAt time.Time
}
