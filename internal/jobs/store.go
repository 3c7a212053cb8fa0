package jobs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bobarin/reelsmith/internal/models"
)

// Store holds job records. Implementations hand out copies, never the stored
// value, so readers cannot race the single writer.
type Store interface {
	Create(rec models.JobRecord) error
	Get(id string) (models.JobRecord, error)
	// Update applies fn to a copy of the record and stores the result unless
	// fn returns an error.
	Update(id string, fn func(rec *models.JobRecord) error) (models.JobRecord, error)
	List() []models.JobRecord
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.JobRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.JobRecord)}
}

func (s *MemoryStore) Create(rec models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("job %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Get(id string) (models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return models.JobRecord{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(id string, fn func(rec *models.JobRecord) error) (models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return models.JobRecord{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return current.Clone(), err
	}

	s.records[id] = next
	return next.Clone(), nil
}

// List returns every record, oldest first.
func (s *MemoryStore) List() []models.JobRecord {
	s.mu.RLock()
	out := make([]models.JobRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
