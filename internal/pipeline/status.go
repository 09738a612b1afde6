package pipeline

import "sync"

// State is the computation state of a gene pair.
type State string

// Computation states.
const (
	NotStarted State = "not_started"
	Computing  State = "computing"
	Ready      State = "ready"
	Failed     State = "error"
)

// Status is the observable progress of one gene pair.
type Status struct {
	State   State  `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusStore tracks gene-pair status for the life of the process.
// Unknown keys report NotStarted. Safe for concurrent use.
type StatusStore struct {
	mu sync.RWMutex
	m  map[GenePair]Status
}

// NewStatusStore returns an empty store.
func NewStatusStore() *StatusStore {
	return &StatusStore{m: make(map[GenePair]Status)}
}

// Get returns the status for pair.
func (s *StatusStore) Get(pair GenePair) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.m[pair]; ok {
		return st
	}
	return Status{State: NotStarted}
}

// Set records the status for pair.
func (s *StatusStore) Set(pair GenePair, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[pair] = st
}

// Delete forgets pair.
func (s *StatusStore) Delete(pair GenePair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, pair)
}

// DeleteProject forgets every pair of project.
func (s *StatusStore) DeleteProject(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pair := range s.m {
		if pair.Project == project {
			delete(s.m, pair)
		}
	}
}
