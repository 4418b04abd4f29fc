// Package artifacts holds the produced documents of a session behind a lock so
// concurrent stage tracks can write while the session is being persisted.
package artifacts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/types"
)

// ErrNotFound is returned when an artifact id is unknown.
var ErrNotFound = errors.New("artifact not found")

// Store guards a session's artifact map.
type Store struct {
	mu    sync.RWMutex
	items map[string]*types.Artifact
	now   func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for artifact timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore wraps items, which is usually Session.Artifacts. The map is shared,
// not copied; all further access must go through the store.
func NewStore(items map[string]*types.Artifact, opts ...StoreOption) *Store {
	if items == nil {
		items = make(map[string]*types.Artifact)
	}
	store := &Store{
		items: items,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// ID builds the deterministic id for the seq-th artifact of a stage track.
// Re-running a stage therefore addresses the same artifacts.
func ID(stage, track string, seq int) string {
	return fmt.Sprintf("%s.%s.%02d", stage, track, seq)
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns a copy of the artifact with the given id.
func (s *Store) Get(id string) (types.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[id]
	if !ok || a == nil {
		return types.Artifact{}, false
	}
	return *a, true
}

// Produced reports whether id exists with content.
func (s *Store) Produced(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.items[id]
	return ok && a != nil && a.HasContent()
}

// Put inserts or replaces an artifact, stamping timestamps.
func (s *Store) Put(a types.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.items[a.ID]; ok && existing != nil {
		a.CreatedAt = existing.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.Version < 1 {
		a.Version = 1
	}
	a.UpdatedAt = now
	s.items[a.ID] = &a
}

// Update applies fn to the stored artifact under the write lock. The change is
// kept only when fn returns nil.
func (s *Store) Update(id string, fn func(a *types.Artifact) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok || a == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	working := *a
	working.PriorVersions = append([]types.PriorVersion(nil), a.PriorVersions...)
	if err := fn(&working); err != nil {
		return err
	}
	working.UpdatedAt = s.now()
	s.items[id] = &working
	return nil
}

// Filter selects artifacts in List. Zero fields match everything.
type Filter struct {
	Stage    string
	Track    string
	Statuses []types.ArtifactStatus
	IDs      []string
}

func (f Filter) match(a *types.Artifact) bool {
	if f.Stage != "" && a.ProducingStage != f.Stage {
		return false
	}
	if f.Track != "" && a.Track != f.Track {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, a.ID) {
		return false
	}
	return true
}

// List returns copies of matching artifacts ordered by stage, track and sequence.
func (s *Store) List(f Filter) []types.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Artifact
	for _, a := range s.items {
		if a != nil && f.match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := stageIndex(out[i].ProducingStage), stageIndex(out[j].ProducingStage)
		if si != sj {
			return si < sj
		}
		if out[i].Track != out[j].Track {
			return out[i].Track < out[j].Track
		}
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// View runs fn while holding the read lock, so no artifact changes while fn
// reads the underlying map (for example while the session is serialized).
func (s *Store) View(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

func stageIndex(stage string) int {
	for i, name := range types.StageNames {
		if name == stage {
			return i
		}
	}
	return len(types.StageNames)
}

func containsStatus(list []types.ArtifactStatus, s types.ArtifactStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
