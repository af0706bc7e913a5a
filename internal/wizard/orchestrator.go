// Package wizard implements the resumable three-step inspection-creation
// flow: select establishments, configure the statute, review and submit.
// Progress is persisted after a debounce under its own key, expires after a
// fixed window, and is only ever restored with the user's consent.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/kvstore"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// ProgressKey is the persistence key prefix for wizard progress. It is
// distinct from the draft engine's key space and the two must never share
// keys.
const ProgressKey = "inspection-wizard-progress"

// ProgressKeyFor returns the persistence key for one actor's progress.
func ProgressKeyFor(actorID string) string {
	if actorID == "" {
		return ProgressKey
	}
	return ProgressKey + ":" + actorID
}

// MaxSelection caps how many establishments one batch may cover.
const MaxSelection = 50

// Step is the wizard's position.
type Step int

const (
	StepSelect Step = iota + 1
	StepConfigure
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepSelect:
		return "select"
	case StepConfigure:
		return "configure"
	case StepReview:
		return "review"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Establishment is the slice of establishment state the wizard needs.
type Establishment struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Province            string       `json:"province"`
	City                string       `json:"city"`
	LastLaw             workflow.Law `json:"last_law,omitempty"`
	HasActiveInspection bool         `json:"has_active_inspection"`
}

// Creator creates one inspection per selected establishment. Implemented by
// the inspection service.
type Creator interface {
	CreateForEstablishment(ctx context.Context, est Establishment, law workflow.Law, createdBy string) (*workflow.Inspection, error)
}

// Source rehydrates establishment details when resuming saved progress.
type Source interface {
	GetEstablishments(ctx context.Context, ids []string) ([]Establishment, error)
}

// Progress is the persisted wizard state. SavedAt drives the staleness check
// on restore.
type Progress struct {
	Step        Step              `json:"step"`
	SelectedIDs []string          `json:"selected_ids"`
	Law         workflow.Law      `json:"law,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	SortKey     string            `json:"sort_key,omitempty"`
	SavedAt     time.Time         `json:"lastSaved"`
}

// Result reports a submission. Creation is per-establishment with no
// rollback: Created counts successes, FirstError carries the first failure.
type Result struct {
	Requested int
	Created   int
	FirstErr  error
	Records   []*workflow.Inspection
}

// AllSucceeded reports whether every item in the batch was created.
func (r *Result) AllSucceeded() bool { return r.Created == r.Requested }

// Summary is the user-facing outcome line; it never claims success unless
// every item succeeded.
func (r *Result) Summary() string {
	if r.AllSucceeded() {
		return fmt.Sprintf("%d inspections created", r.Created)
	}
	return fmt.Sprintf("%d of %d inspections created", r.Created, r.Requested)
}

// Config assembles an Orchestrator.
type Config struct {
	Store    kvstore.Store
	Creator  Creator
	Source   Source
	ActorID  string // identifies the wizard session owner
	TTL      time.Duration
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Orchestrator drives one actor's wizard session.
type Orchestrator struct {
	store       kvstore.Store
	creator     Creator
	source      Source
	actorID     string
	progressKey string
	ttl         time.Duration
	debounce    time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu            sync.Mutex
	step          Step
	selected      []Establishment
	law           workflow.Law
	filters       map[string]string
	sortKey       string
	submitting    bool
	debounceTimer *time.Timer
	closed        bool
}

// NewOrchestrator creates a session positioned at the select step.
func NewOrchestrator(cfg Config) *Orchestrator {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Orchestrator{
		store:       cfg.Store,
		creator:     cfg.Creator,
		source:      cfg.Source,
		actorID:     cfg.ActorID,
		progressKey: ProgressKeyFor(cfg.ActorID),
		ttl:         ttl,
		debounce:    debounce,
		log:         cfg.Logger,
		now:         time.Now,
		step:        StepSelect,
		filters:     make(map[string]string),
	}
}

// Step returns the current position.
func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

// Selected returns a copy of the current selection.
func (o *Orchestrator) Selected() []Establishment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Establishment, len(o.selected))
	copy(out, o.selected)
	return out
}

// Law returns the configured statute.
func (o *Orchestrator) Law() workflow.Law {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.law
}

// Select adds an establishment to the batch.
func (o *Orchestrator) Select(est Establishment) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if est.HasActiveInspection {
		return apperrors.Newf(apperrors.ErrCodeConflict,
			"establishment %q is already covered by an open inspection", est.Name)
	}
	if len(o.selected) >= MaxSelection {
		return apperrors.InvalidInput("selection",
			fmt.Sprintf("at most %d establishments per batch", MaxSelection))
	}
	for _, s := range o.selected {
		if s.ID == est.ID {
			return nil // already selected
		}
	}
	o.selected = append(o.selected, est)
	o.scheduleSaveLocked()
	return nil
}

// Deselect removes an establishment from the batch.
func (o *Orchestrator) Deselect(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.selected {
		if s.ID == id {
			o.selected = append(o.selected[:i], o.selected[i+1:]...)
			o.scheduleSaveLocked()
			return
		}
	}
}

// SetLaw configures the statute shared by the whole batch.
func (o *Orchestrator) SetLaw(law workflow.Law) error {
	if !law.Valid() {
		return apperrors.InvalidInput("law", "unknown statute "+string(law))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.law = law
	o.scheduleSaveLocked()
	return nil
}

// SetFilters records the list filters in effect so a resumed session shows
// the same view.
func (o *Orchestrator) SetFilters(filters map[string]string, sortKey string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filters = filters
	o.sortKey = sortKey
	o.scheduleSaveLocked()
}

// Conflicts returns the non-blocking advisory warnings for the current
// selection and law.
func (o *Orchestrator) Conflicts() []workflow.LawConflict {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.law == "" {
		return nil
	}
	refs := make([]workflow.EstablishmentRef, 0, len(o.selected))
	for _, s := range o.selected {
		refs = append(refs, workflow.EstablishmentRef{ID: s.ID, Name: s.Name, LastLaw: s.LastLaw})
	}
	return workflow.BatchLawConflicts(o.law, refs)
}

// Next advances one step. Forward navigation is blocked until the current
// step's validation is satisfied.
func (o *Orchestrator) Next() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.step {
	case StepSelect:
		if len(o.selected) == 0 {
			return apperrors.InvalidInput("selection", "select at least one establishment")
		}
		o.step = StepConfigure
	case StepConfigure:
		if !o.law.Valid() {
			return apperrors.InvalidInput("law", "choose a statute for the batch")
		}
		o.step = StepReview
	case StepReview:
		return apperrors.InvalidInput("step", "already at review; submit instead")
	}
	o.scheduleSaveLocked()
	return nil
}

// Back moves one step backward; always allowed.
func (o *Orchestrator) Back() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.step > StepSelect {
		o.step--
		o.scheduleSaveLocked()
	}
}

// Submit creates one inspection per selected establishment. Each creation is
// independent; a failure does not roll back earlier successes. Successfully
// created establishments are removed from the selection so a retry only
// re-attempts failures. Progress is cleared once everything succeeded.
func (o *Orchestrator) Submit(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	if o.step != StepReview {
		o.mu.Unlock()
		return nil, apperrors.InvalidInput("step", "submit is only available at review")
	}
	if o.submitting {
		o.mu.Unlock()
		return nil, apperrors.Conflict("a submission is already in flight")
	}
	o.submitting = true
	batch := make([]Establishment, len(o.selected))
	copy(batch, o.selected)
	law := o.law
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.submitting = false
		o.mu.Unlock()
	}()

	result := &Result{Requested: len(batch)}
	var remaining []Establishment

	for _, est := range batch {
		insp, err := o.creator.CreateForEstablishment(ctx, est, law, o.actorID)
		if err != nil {
			if result.FirstErr == nil {
				result.FirstErr = err
			}
			remaining = append(remaining, est)
			o.log.Warn().Err(err).
				Str("establishment_id", est.ID).
				Msg("inspection creation failed")
			continue
		}
		result.Created++
		result.Records = append(result.Records, insp)
	}

	o.mu.Lock()
	o.selected = remaining
	o.mu.Unlock()

	if result.AllSucceeded() {
		o.clearProgress(ctx)
	}

	o.log.Info().
		Int("requested", result.Requested).
		Int("created", result.Created).
		Msg("wizard batch submitted")
	return result, nil
}

// ── Progress persistence ──────────────────────────────────────────────────────

// scheduleSaveLocked arms the debounced save. Callers hold o.mu.
func (o *Orchestrator) scheduleSaveLocked() {
	if o.closed || o.store == nil {
		return
	}
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
	}
	o.debounceTimer = time.AfterFunc(o.debounce, func() {
		o.saveProgress(context.Background())
	})
}

func (o *Orchestrator) snapshotLocked() Progress {
	ids := make([]string, 0, len(o.selected))
	for _, s := range o.selected {
		ids = append(ids, s.ID)
	}
	return Progress{
		Step:        o.step,
		SelectedIDs: ids,
		Law:         o.law,
		Filters:     o.filters,
		SortKey:     o.sortKey,
		SavedAt:     o.now(),
	}
}

func (o *Orchestrator) saveProgress(ctx context.Context) {
	o.mu.Lock()
	progress := o.snapshotLocked()
	o.mu.Unlock()

	data, err := json.Marshal(progress)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to marshal wizard progress")
		return
	}
	if err := o.store.Set(ctx, o.progressKey, string(data), o.ttl); err != nil {
		// Local persistence failures degrade to "start fresh" next time.
		o.log.Warn().Err(err).Msg("failed to persist wizard progress")
	}
}

// SaveNow persists progress immediately, bypassing the debounce.
func (o *Orchestrator) SaveNow(ctx context.Context) {
	o.saveProgress(ctx)
}

// LoadSaved returns unexpired saved progress, if any. Expired or unreadable
// progress is discarded and (nil, false) returned.
func (o *Orchestrator) LoadSaved(ctx context.Context) (*Progress, bool) {
	if o.store == nil {
		return nil, false
	}
	raw, ok, err := o.store.Get(ctx, o.progressKey)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to read wizard progress; starting fresh")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var progress Progress
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		o.log.Warn().Err(err).Msg("corrupt wizard progress; starting fresh")
		o.clearProgress(ctx)
		return nil, false
	}
	if o.now().Sub(progress.SavedAt) > o.ttl {
		o.clearProgress(ctx)
		return nil, false
	}
	return &progress, true
}

// Resume applies saved progress after the user accepted the restore prompt.
// Declining clears the saved state; restoration is never silent.
func (o *Orchestrator) Resume(ctx context.Context, progress *Progress, accept bool) error {
	if !accept {
		o.clearProgress(ctx)
		return nil
	}

	var establishments []Establishment
	if len(progress.SelectedIDs) > 0 && o.source != nil {
		var err error
		establishments, err = o.source.GetEstablishments(ctx, progress.SelectedIDs)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
				"failed to rehydrate selected establishments")
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.step = progress.Step
	o.selected = establishments
	o.law = progress.Law
	if progress.Filters != nil {
		o.filters = progress.Filters
	}
	o.sortKey = progress.SortKey
	return nil
}

func (o *Orchestrator) clearProgress(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.Clear(ctx, o.progressKey); err != nil {
		o.log.Warn().Err(err).Msg("failed to clear wizard progress")
	}
}

// Close cancels the pending debounced save. An already-dispatched store
// write is not cancelled; its result is simply irrelevant afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
}
