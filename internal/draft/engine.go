// Package draft implements the periodic persistence of in-progress form data
// against one inspection: a fixed-cadence dirty check, a caller-supplied
// validation predicate, offline awareness with a reconnect save, and an
// idempotent flush (re-entrant ticks are dropped, never queued).
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/kvstore"
)

// SendFunc flushes a draft payload to the authority.
type SendFunc func(ctx context.Context, inspectionID string, payload map[string]any) error

// ValidateFunc checks a payload before it is sent. A failure sets the
// engine's error state and skips the send; it is not retried until the
// payload changes or the next tick fires.
type ValidateFunc func(payload map[string]any) error

// Snapshot is the locally persisted copy of the last successful save, stored
// under the engine's key with an explicit timestamp for staleness checks.
type Snapshot struct {
	Payload   map[string]any `json:"payload"`
	LastSaved time.Time      `json:"lastSaved"`
}

// Config assembles an Engine.
type Config struct {
	InspectionID string // empty means an unsaved draft
	Store        kvstore.Store
	Send         SendFunc
	Validate     ValidateFunc
	Interval     time.Duration // save cadence; default 30s
	SettleDelay  time.Duration // wait after reconnect before the extra save
	Logger       zerolog.Logger
}

// Engine runs the auto-save loop for one inspection's form payload.
type Engine struct {
	inspectionID string
	key          string
	store        kvstore.Store
	send         SendFunc
	validate     ValidateFunc
	interval     time.Duration
	settleDelay  time.Duration
	log          zerolog.Logger
	now          func() time.Time

	onlineCh chan bool

	mu           sync.Mutex
	current      map[string]any
	lastSent     map[string]any
	lastSaveTime time.Time
	lastErr      error
	online       bool
	inFlight     bool
}

// Key returns the local persistence key for an inspection's draft.
func Key(inspectionID string) string {
	if inspectionID == "" {
		return "inspection-form-draft"
	}
	return "inspection-form-" + inspectionID
}

// NewEngine creates a stopped engine; call Run to start the loop.
func NewEngine(cfg Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Engine{
		inspectionID: cfg.InspectionID,
		key:          Key(cfg.InspectionID),
		store:        cfg.Store,
		send:         cfg.Send,
		validate:     cfg.Validate,
		interval:     interval,
		settleDelay:  settle,
		log:          cfg.Logger,
		now:          time.Now,
		onlineCh:     make(chan bool, 4),
		online:       true,
	}
}

// SetPayload replaces the current form payload; the next tick decides
// whether it is dirty.
func (e *Engine) SetPayload(payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = payload
}

// SetOnline reports a connectivity change. An offline-to-online transition
// schedules one extra save attempt after the settling delay.
func (e *Engine) SetOnline(online bool) {
	select {
	case e.onlineCh <- online:
	default:
		// A full channel means the loop already has pending transitions to
		// process; the latest state will be observed there.
	}
}

// Dirty reports whether the current payload differs structurally from the
// last successfully sent one.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirtyLocked()
}

func (e *Engine) dirtyLocked() bool {
	if e.current == nil {
		return false
	}
	return !reflect.DeepEqual(e.current, e.lastSent)
}

// LastSaveTime returns when the last successful save completed.
func (e *Engine) LastSaveTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSaveTime
}

// Err returns the current error state (validation or send failure), or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Run executes the save loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			e.tick(ctx)

		case online := <-e.onlineCh:
			e.mu.Lock()
			wasOnline := e.online
			e.online = online
			e.mu.Unlock()
			if online && !wasOnline {
				settle = time.After(e.settleDelay)
			}

		case <-settle:
			settle = nil
			e.tick(ctx)
		}
	}
}

// tick performs one save attempt. Skips when clean, offline, or when a save
// is already in flight for this inspection.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if !e.online || e.inFlight || !e.dirtyLocked() {
		e.mu.Unlock()
		return
	}

	payload := e.current
	if e.validate != nil {
		if err := e.validate(payload); err != nil {
			e.lastErr = apperrors.Wrap(err, apperrors.ErrCodeValidationFailed, "draft validation failed")
			e.mu.Unlock()
			e.log.Debug().Str("inspection_id", e.inspectionID).Err(err).
				Msg("auto-save skipped: validation failed")
			return
		}
	}

	e.inFlight = true
	e.mu.Unlock()

	err := e.send(ctx, e.inspectionID, payload)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.lastErr = err
		e.mu.Unlock()
		e.log.Warn().Str("inspection_id", e.inspectionID).Err(err).
			Msg("auto-save failed; will retry on next tick")
		return
	}
	e.lastSent = payload
	e.lastSaveTime = e.now()
	e.lastErr = nil
	savedAt := e.lastSaveTime
	e.mu.Unlock()

	e.persistSnapshot(ctx, payload, savedAt)
	e.log.Debug().Str("inspection_id", e.inspectionID).Msg("auto-save complete")
}

// persistSnapshot mirrors the sent payload locally. Local write failures are
// logged and otherwise ignored; they never block the user.
func (e *Engine) persistSnapshot(ctx context.Context, payload map[string]any, savedAt time.Time) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(Snapshot{Payload: payload, LastSaved: savedAt})
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to marshal draft snapshot")
		return
	}
	if err := e.store.Set(ctx, e.key, string(data), 0); err != nil {
		e.log.Warn().Err(err).Str("key", e.key).Msg("failed to persist draft snapshot")
	}
}

// LoadSnapshot returns the locally persisted snapshot, if one exists. Read
// failures degrade to "start fresh".
func (e *Engine) LoadSnapshot(ctx context.Context) (*Snapshot, bool) {
	if e.store == nil {
		return nil, false
	}
	raw, ok, err := e.store.Get(ctx, e.key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", e.key).Msg("failed to read draft snapshot; starting fresh")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		e.log.Warn().Err(err).Str("key", e.key).Msg("corrupt draft snapshot; starting fresh")
		return nil, false
	}
	return &snap, true
}

// Discard deletes the local snapshot after final submission or an explicit
// user discard.
func (e *Engine) Discard(ctx context.Context) error {
	e.mu.Lock()
	e.current = nil
	e.lastSent = nil
	e.lastErr = nil
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	if err := e.store.Clear(ctx, e.key); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to discard draft")
	}
	return nil
}

// IsValidationError reports whether err came from the validation predicate.
func IsValidationError(err error) bool {
	var coded *apperrors.Error
	return errors.As(err, &coded) && coded.Code == apperrors.ErrCodeValidationFailed
}
