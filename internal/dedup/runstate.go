// Package dedup decides whether a record already exists in the remote store,
// consulting the current run's state, the lookup caches, and finally the
// store itself.
package dedup

import (
	"sync"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// RunState tracks identifiers claimed during the current batch run. It
// catches duplicates within a single batch before any cache or remote
// round-trip, which matters because several sources can surface the same
// work in one batch.
//
// Visibility is immediate: once a worker claims a key, every other worker
// sees the claim. A claim starts pending (item key unknown) and is committed
// once the remote create succeeds.
type RunState struct {
	mu     sync.Mutex
	claims map[domain.IdentifierKey]string
}

// NewRunState creates an empty RunState for one batch run.
func NewRunState() *RunState {
	return &RunState{claims: make(map[domain.IdentifierKey]string)}
}

// Lookup returns the claimed item key for key (possibly empty while the
// create is still in flight) and whether the key is claimed at all.
func (s *RunState) Lookup(key domain.IdentifierKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	itemKey, ok := s.claims[key]
	return itemKey, ok
}

// TryClaim atomically claims key for the calling worker. When the key is
// already claimed it returns the existing item key and false; the caller
// must then treat its record as a duplicate.
func (s *RunState) TryClaim(key domain.IdentifierKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemKey, ok := s.claims[key]; ok {
		return itemKey, false
	}
	s.claims[key] = ""
	return "", true
}

// Commit records the remote item key for a previously claimed key.
func (s *RunState) Commit(key domain.IdentifierKey, itemKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[key] = itemKey
}

// Release drops a claim whose create failed, so a later record with the same
// key (e.g. on retry) is not misreported as a duplicate of nothing.
func (s *RunState) Release(key domain.IdentifierKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
}

// Len returns the number of claimed keys.
func (s *RunState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}
