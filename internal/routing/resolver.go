package routing

import (
	"context"
	"sync"
	"time"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// Directory is the personnel registry the resolver draws from. The
// production implementation is the pgx personnel repository.
type Directory interface {
	FindByRole(ctx context.Context, role workflow.Role) ([]workflow.Personnel, error)
}

// Resolver resolves {law, district, target stage} to a ranked assignment.
// Results are recomputed per decision by default; an optional cache window
// over directory reads exists for deployments that want it (cacheTTL > 0).
type Resolver struct {
	directory Directory
	cacheTTL  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[workflow.Role]cachedRoster
}

type cachedRoster struct {
	personnel []workflow.Personnel
	fetchedAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL enables caching of directory reads for the given window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// NewResolver creates a resolver over the given directory.
func NewResolver(directory Directory, opts ...Option) *Resolver {
	r := &Resolver{
		directory: directory,
		now:       time.Now,
		cache:     make(map[workflow.Role]cachedRoster),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the personnel eligible to receive an inspection entering
// target, partitioned into district matches (preferred) and everyone else.
// An empty assignment is not an error here; the state machine turns it into
// NoEligiblePersonnel so the record stays untouched.
func (r *Resolver) Resolve(ctx context.Context, law workflow.Law, district string, target workflow.Stage) (workflow.Assignment, error) {
	role, ok := workflow.RoleForStage(target)
	if !ok {
		return workflow.Assignment{}, apperrors.InvalidInput("target_stage", "terminal stage has no assignee")
	}

	roster, err := r.roster(ctx, role)
	if err != nil {
		return workflow.Assignment{}, err
	}

	var assignment workflow.Assignment
	for _, p := range roster {
		if !p.Active || !p.ServesLaw(law) {
			continue
		}
		if p.District == district {
			assignment.Preferred = append(assignment.Preferred, p)
		} else {
			assignment.Fallback = append(assignment.Fallback, p)
		}
	}
	return assignment, nil
}

func (r *Resolver) roster(ctx context.Context, role workflow.Role) ([]workflow.Personnel, error) {
	if r.cacheTTL <= 0 {
		return r.directory.FindByRole(ctx, role)
	}

	r.mu.Lock()
	cached, ok := r.cache[role]
	r.mu.Unlock()
	if ok && r.now().Sub(cached.fetchedAt) < r.cacheTTL {
		return cached.personnel, nil
	}

	personnel, err := r.directory.FindByRole(ctx, role)
	if err != nil {
		// Serve a stale roster over failing the decision outright.
		if ok {
			return cached.personnel, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[role] = cachedRoster{personnel: personnel, fetchedAt: r.now()}
	r.mu.Unlock()
	return personnel, nil
}
