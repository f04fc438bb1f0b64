package portaltest

import (
	"context"
	"sort"
	"sync"

	"courtsync/internal/portal"
)

// MemoryStore is a RecordStore over a map.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]portal.CaseRecord
	order   []string
	logs    []portal.QueryLog
	updates int

	// UpdateErr, when set, fails every update.
	UpdateErr error
}

// NewMemoryStore holds the given records.
func NewMemoryStore(records ...portal.CaseRecord) *MemoryStore {
	s := &MemoryStore{records: make(map[string]portal.CaseRecord)}
	for _, r := range records {
		k := key(r.ID, r.Tribunal)
		if _, ok := s.records[k]; !ok {
			s.order = append(s.order, k)
		}
		s.records[k] = r
	}
	return s
}

func key(id string, t portal.Tribunal) string { return string(t) + "/" + id }

func (s *MemoryStore) FetchPending(_ context.Context, t portal.Tribunal, status portal.Status) ([]portal.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []portal.CaseRecord
	for _, k := range s.order {
		r := s.records[k]
		if r.Tribunal == t && r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, t portal.Tribunal, u portal.CaseUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	k := key(id, t)
	r, ok := s.records[k]
	if !ok {
		return portal.ErrRecordNotFound
	}
	classification := r.Fields.Classification
	r.Fields = u.Fields
	if u.OmitClassification {
		r.Fields.Classification = classification
	}
	if u.SuggestedStatus != "" {
		r.SuggestedStatus = u.SuggestedStatus
	}
	r.QueriedAt = u.QueriedAt
	s.records[k] = r
	s.updates++
	return nil
}

func (s *MemoryStore) LogQuery(_ context.Context, entry portal.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

// Get returns the stored record.
func (s *MemoryStore) Get(id string, t portal.Tribunal) (portal.CaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key(id, t)]
	return r, ok
}

// Len is the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Updates counts successful updates.
func (s *MemoryStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Logs returns the query history, oldest first.
func (s *MemoryStore) Logs() []portal.QueryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]portal.QueryLog(nil), s.logs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ portal.RecordStore = (*MemoryStore)(nil)
