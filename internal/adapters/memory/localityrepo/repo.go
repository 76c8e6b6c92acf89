package localityrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
)

// Repo is an in-memory implementation of localityrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu     sync.RWMutex
	byName map[domain.LocalityName]domain.Locality
}

func NewRepo() *Repo {
	return &Repo{byName: make(map[domain.LocalityName]domain.Locality)}
}

func (r *Repo) Lookup(ctx context.Context, name domain.LocalityName) (domain.Locality, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byName[name]
	if !ok {
		return domain.Locality{}, localityrepo.ErrNotFound
	}
	return l, nil
}

func (r *Repo) List(ctx context.Context) ([]domain.Locality, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Locality, 0, len(r.byName))
	for _, l := range r.byName {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repo) Upsert(ctx context.Context, l domain.Locality) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[l.Name] = l
	return nil
}
