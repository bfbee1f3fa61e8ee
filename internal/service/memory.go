package service

import (
	"sync"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region memory-repository
// MemoryRepository is the in-process Repository used by tests and the
// replay harness. History is a bounded ring per subject.
type MemoryRepository struct {
	mu         sync.RWMutex
	historyCap int
	twins      map[string]*twin.TwinState
	history    map[string][]*twin.TwinState
	profiles   map[string]twin.Personalization
	beliefs    map[string]*belief.BeliefState
}

// NewMemoryRepository creates an empty repository with the given history
// cap (≤0 means the default of 500).
func NewMemoryRepository(historyCap int) *MemoryRepository {
	if historyCap <= 0 {
		historyCap = 500
	}
	return &MemoryRepository{
		historyCap: historyCap,
		twins:      make(map[string]*twin.TwinState),
		history:    make(map[string][]*twin.TwinState),
		profiles:   make(map[string]twin.Personalization),
		beliefs:    make(map[string]*belief.BeliefState),
	}
}

// #endregion memory-repository

// #region twin-access
// GetTwin returns a deep copy of the current twin.
func (r *MemoryRepository) GetTwin(subjectID string) (*twin.TwinState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.twins[subjectID]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

// PutTwin stores a deep copy as the current twin.
func (r *MemoryRepository) PutTwin(t *twin.TwinState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.twins[t.SubjectID] = t.Clone()
	return nil
}

// #endregion twin-access

// #region history
// AppendSnapshot appends a deep copy to the subject's ring, evicting the
// oldest entry past the cap.
func (r *MemoryRepository) AppendSnapshot(t *twin.TwinState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := append(r.history[t.SubjectID], t.Clone())
	if len(h) > r.historyCap {
		h = h[len(h)-r.historyCap:]
	}
	r.history[t.SubjectID] = h
	return nil
}

// History returns copies of the retained snapshots in append order,
// filtered to the window when one is given.
func (r *MemoryRepository) History(subjectID string, window time.Duration) ([]*twin.TwinState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := r.history[subjectID]
	var cutoff time.Time
	if window > 0 && len(h) > 0 {
		cutoff = h[len(h)-1].UpdatedAt.Add(-window)
	}
	out := make([]*twin.TwinState, 0, len(h))
	for _, snap := range h {
		if !cutoff.IsZero() && snap.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, snap.Clone())
	}
	return out, nil
}

// #endregion history

// #region profiles
// GetProfile returns the stored personalization profile.
func (r *MemoryRepository) GetProfile(subjectID string) (twin.Personalization, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[subjectID]
	return p, ok, nil
}

// PutProfile stores a personalization profile.
func (r *MemoryRepository) PutProfile(p twin.Personalization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.SubjectID] = p
	return nil
}

// #endregion profiles

// #region beliefs
// GetBeliefs returns a deep copy of the stored belief state.
func (r *MemoryRepository) GetBeliefs(subjectID string) (*belief.BeliefState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beliefs[subjectID]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

// PutBeliefs stores a deep copy of the belief state.
func (r *MemoryRepository) PutBeliefs(b *belief.BeliefState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beliefs[b.SubjectID] = b.Clone()
	return nil
}

// #endregion beliefs
