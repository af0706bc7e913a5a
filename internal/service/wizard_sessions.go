package service

import (
	"sync"
	"time"

	"github.com/ecogov/be-inspections/internal/kvstore"
	"github.com/ecogov/be-inspections/internal/logger"
	"github.com/ecogov/be-inspections/internal/wizard"
)

// WizardSessions hands out one wizard orchestrator per acting user. Sessions
// are created lazily and live until Close; persisted progress carries across
// process restarts through the key-value store.
type WizardSessions struct {
	store    kvstore.Store
	creator  wizard.Creator
	source   wizard.Source
	ttl      time.Duration
	debounce time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]*wizard.Orchestrator
}

// NewWizardSessions creates the session registry.
func NewWizardSessions(store kvstore.Store, creator wizard.Creator, source wizard.Source, ttl, debounce time.Duration, log *logger.Logger) *WizardSessions {
	return &WizardSessions{
		store:    store,
		creator:  creator,
		source:   source,
		ttl:      ttl,
		debounce: debounce,
		log:      log,
		sessions: make(map[string]*wizard.Orchestrator),
	}
}

// ForActor returns the actor's session, creating it on first use.
func (w *WizardSessions) ForActor(actorID string) *wizard.Orchestrator {
	w.mu.Lock()
	defer w.mu.Unlock()

	if o, ok := w.sessions[actorID]; ok {
		return o
	}
	o := wizard.NewOrchestrator(wizard.Config{
		Store:    w.store,
		Creator:  w.creator,
		Source:   w.source,
		ActorID:  actorID,
		TTL:      w.ttl,
		Debounce: w.debounce,
		Logger:   w.log.Logger,
	})
	w.sessions[actorID] = o
	return o
}

// Drop discards an actor's in-memory session. Saved progress is untouched so
// the actor can still resume later.
func (w *WizardSessions) Drop(actorID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if o, ok := w.sessions[actorID]; ok {
		o.Close()
		delete(w.sessions, actorID)
	}
}

// Close shuts down every live session.
func (w *WizardSessions) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, o := range w.sessions {
		o.Close()
		delete(w.sessions, id)
	}
}
