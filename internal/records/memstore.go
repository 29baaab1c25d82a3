package records

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-process record store used by the coordinator
// tests.
type MemStore struct {
	mu   sync.Mutex
	recs map[string]Reservation
}

// NewMemStore returns an empty in-memory record store.
func NewMemStore() *MemStore {
	return &MemStore{recs: map[string]Reservation{}}
}

func (m *MemStore) Create(_ context.Context, rec *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = *rec
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemStore) Update(_ context.Context, rec *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.recs[rec.ID] = *rec
	return nil
}

func (m *MemStore) Delete(_ context.Context, rec *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	delete(m.recs, rec.ID)
	return nil
}

func (m *MemStore) ListAll(_ context.Context) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reservation, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) ExistsLogin(_ context.Context, loginID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := NormalizeLogin(loginID)
	for _, rec := range m.recs {
		if NormalizeLogin(rec.LoginID) == needle {
			return true, nil
		}
	}
	return false, nil
}
