package calltree

import (
	"sort"
	"sync"
)

type (
	// Roots is the list of top-level calls of a single thread. Only the
	// owning thread appends to it, through Store.AppendRoot.
	Roots struct {
		ThreadID uint64
		Name     string
		records  []*CallRecord
	}

	// Store owns the roots of every thread seen during a profiling session.
	// Records are never removed.
	Store struct {
		mu      sync.RWMutex
		threads map[uint64]*Roots
	}
)

func (r *Roots) Append(rec *CallRecord) {
	r.records = append(r.records, rec)
}

func NewStore() *Store {
	return &Store{threads: make(map[uint64]*Roots)}
}

// RegisterThread returns the root list of a thread, creating an empty one on
// first sight. A non-empty name replaces an empty one.
func (s *Store) RegisterThread(threadID uint64, name string) *Roots {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.threads[threadID]
	if !ok {
		r = &Roots{ThreadID: threadID, Name: name}
		s.threads[threadID] = r
	} else if r.Name == "" {
		r.Name = name
	}
	return r
}

// AppendRoot appends rec to the roots of a thread, registering it if needed.
// Appends for one thread must come from a single goroutine.
func (s *Store) AppendRoot(threadID uint64, rec *CallRecord) {
	s.mu.RLock()
	r, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		r = s.RegisterThread(threadID, "")
	}
	r.Append(rec)
}

// Threads returns the known thread ids in ascending order.
func (s *Store) Threads() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// RootsFor returns the ordered roots of a thread. The returned slice must
// not be read while the thread is still emitting events.
func (s *Store) RootsFor(threadID uint64) []*CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return r.records
}

// ThreadNames returns the names reported for each thread, if any.
func (s *Store) ThreadNames() map[uint64]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[uint64]string, len(s.threads))
	for id, r := range s.threads {
		if r.Name != "" {
			names[id] = r.Name
		}
	}
	return names
}

// Forest copies the root lists into a Forest. Threads with no completed
// root are kept with an empty list.
func (s *Store) Forest() Forest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := make(Forest, len(s.threads))
	for id, r := range s.threads {
		roots := make([]*CallRecord, len(r.records))
		copy(roots, r.records)
		f[id] = roots
	}
	return f
}
