package wizard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/kvstore"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// fakeCreator fails for establishment ids in failFor.
type fakeCreator struct {
	failFor map[string]bool
	created []string
}

func (f *fakeCreator) CreateForEstablishment(_ context.Context, est Establishment, law workflow.Law, _ string) (*workflow.Inspection, error) {
	if f.failFor[est.ID] {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"establishment %q already has an open inspection", est.Name)
	}
	f.created = append(f.created, est.ID)
	return &workflow.Inspection{
		ID:              "insp-" + est.ID,
		EstablishmentID: est.ID,
		Law:             law,
		Stage:           workflow.StagePending,
	}, nil
}

type fakeSource struct {
	byID map[string]Establishment
}

func (f *fakeSource) GetEstablishments(_ context.Context, ids []string) ([]Establishment, error) {
	out := make([]Establishment, 0, len(ids))
	for _, id := range ids {
		if est, ok := f.byID[id]; ok {
			out = append(out, est)
		}
	}
	return out, nil
}

func establishments(n int) []Establishment {
	out := make([]Establishment, n)
	for i := range out {
		out[i] = Establishment{
			ID:       fmt.Sprintf("est-%d", i+1),
			Name:     fmt.Sprintf("Plant %d", i+1),
			Province: "Metro Manila",
			City:     "Quezon City",
		}
	}
	return out
}

func newTestOrchestrator(creator Creator, source Source, store kvstore.Store) *Orchestrator {
	return NewOrchestrator(Config{
		Store:    store,
		Creator:  creator,
		Source:   source,
		ActorID: "legal-1",
		// Long enough to never fire during a test; saves are explicit.
		Debounce: time.Hour,
	})
}

func toReview(t *testing.T, o *Orchestrator, ests []Establishment, law workflow.Law) {
	t.Helper()
	for _, est := range ests {
		require.NoError(t, o.Select(est))
	}
	require.NoError(t, o.Next())
	require.NoError(t, o.SetLaw(law))
	require.NoError(t, o.Next())
	require.Equal(t, StepReview, o.Step())
}

func TestSelectRules(t *testing.T) {
	o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
	defer o.Close()

	t.Run("covered establishments are refused", func(t *testing.T) {
		err := o.Select(Establishment{ID: "est-x", Name: "Covered Plant", HasActiveInspection: true})
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	})

	t.Run("duplicates are idempotent", func(t *testing.T) {
		est := establishments(1)[0]
		require.NoError(t, o.Select(est))
		require.NoError(t, o.Select(est))
		assert.Len(t, o.Selected(), 1)
	})

	t.Run("selection is capped", func(t *testing.T) {
		o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
		defer o.Close()
		for _, est := range establishments(MaxSelection) {
			require.NoError(t, o.Select(est))
		}
		err := o.Select(Establishment{ID: "est-51", Name: "One Too Many"})
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
		assert.Len(t, o.Selected(), MaxSelection)
	})
}

func TestStepNavigation(t *testing.T) {
	o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
	defer o.Close()

	// Forward navigation is gated per step.
	err := o.Next()
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	require.NoError(t, o.Select(establishments(1)[0]))
	require.NoError(t, o.Next())
	assert.Equal(t, StepConfigure, o.Step())

	err = o.Next()
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	require.NoError(t, o.SetLaw(workflow.LawCleanAir))
	require.NoError(t, o.Next())
	assert.Equal(t, StepReview, o.Step())

	// Backward navigation is always allowed.
	o.Back()
	assert.Equal(t, StepConfigure, o.Step())
	o.Back()
	assert.Equal(t, StepSelect, o.Step())
	o.Back()
	assert.Equal(t, StepSelect, o.Step())
}

func TestSetLawRejectsUnknownStatute(t *testing.T) {
	o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
	defer o.Close()
	err := o.SetLaw(workflow.Law("RA-0000"))
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestConflictsAreAdvisoryOnly(t *testing.T) {
	o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
	defer o.Close()

	ests := establishments(2)
	ests[0].LastLaw = workflow.LawCleanWater
	toReview(t, o, ests, workflow.LawCleanAir)

	conflicts := o.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "est-1", conflicts[0].EstablishmentID)

	// The warning never blocks submission.
	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, result.AllSucceeded())
}

func TestSubmitPartialFailure(t *testing.T) {
	creator := &fakeCreator{failFor: map[string]bool{"est-2": true}}
	o := newTestOrchestrator(creator, nil, kvstore.NewMemoryStore())
	defer o.Close()

	toReview(t, o, establishments(3), workflow.LawCleanAir)

	result, err := o.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Created)
	assert.False(t, result.AllSucceeded())
	assert.Equal(t, "2 of 3 inspections created", result.Summary())
	require.Error(t, result.FirstErr)
	assert.Len(t, result.Records, 2)

	// Only the failure remains selected for the retry.
	remaining := o.Selected()
	require.Len(t, remaining, 1)
	assert.Equal(t, "est-2", remaining[0].ID)
}

func TestSubmitFullSuccessClearsProgress(t *testing.T) {
	store := kvstore.NewMemoryStore()
	o := newTestOrchestrator(&fakeCreator{}, nil, store)
	defer o.Close()

	toReview(t, o, establishments(2), workflow.LawSolidWaste)
	o.SaveNow(context.Background())

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2 inspections created", result.Summary())

	_, ok, err := store.Get(context.Background(), ProgressKeyFor("legal-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitOnlyFromReview(t *testing.T) {
	o := newTestOrchestrator(&fakeCreator{}, nil, kvstore.NewMemoryStore())
	defer o.Close()

	_, err := o.Submit(context.Background())
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestProgressRoundTrip(t *testing.T) {
	store := kvstore.NewMemoryStore()
	source := &fakeSource{byID: map[string]Establishment{
		"est-1": establishments(1)[0],
	}}

	first := newTestOrchestrator(&fakeCreator{}, source, store)
	require.NoError(t, first.Select(establishments(1)[0]))
	require.NoError(t, first.Next())
	require.NoError(t, first.SetLaw(workflow.LawCleanWater))
	first.SetFilters(map[string]string{"district": "District 2"}, "name")
	first.SaveNow(context.Background())
	first.Close()

	second := newTestOrchestrator(&fakeCreator{}, source, store)
	defer second.Close()

	progress, ok := second.LoadSaved(context.Background())
	require.True(t, ok)
	assert.Equal(t, StepConfigure, progress.Step)
	assert.Equal(t, []string{"est-1"}, progress.SelectedIDs)
	assert.Equal(t, workflow.LawCleanWater, progress.Law)
	assert.Equal(t, "District 2", progress.Filters["district"])

	require.NoError(t, second.Resume(context.Background(), progress, true))
	assert.Equal(t, StepConfigure, second.Step())
	require.Len(t, second.Selected(), 1)
	assert.Equal(t, "est-1", second.Selected()[0].ID)
	assert.Equal(t, workflow.LawCleanWater, second.Law())
}

func TestProgressExpiresAfterTTL(t *testing.T) {
	store := kvstore.NewMemoryStore()
	o := NewOrchestrator(Config{
		Store:    store,
		Creator:  &fakeCreator{},
		TTL:      24 * time.Hour,
		Debounce: time.Hour,
	})
	defer o.Close()

	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return clock }

	require.NoError(t, o.Select(establishments(1)[0]))
	o.SaveNow(context.Background())

	clock = clock.Add(25 * time.Hour)
	_, ok := o.LoadSaved(context.Background())
	assert.False(t, ok)

	// Expired progress is also deleted.
	_, exists, err := store.Get(context.Background(), ProgressKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResumeDeclinedClearsProgress(t *testing.T) {
	store := kvstore.NewMemoryStore()
	o := newTestOrchestrator(&fakeCreator{}, nil, store)
	defer o.Close()

	require.NoError(t, o.Select(establishments(1)[0]))
	o.SaveNow(context.Background())

	progress, ok := o.LoadSaved(context.Background())
	require.True(t, ok)

	require.NoError(t, o.Resume(context.Background(), progress, false))

	_, exists, err := store.Get(context.Background(), ProgressKeyFor("legal-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCorruptProgressDiscarded(t *testing.T) {
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), ProgressKeyFor("legal-1"), "{not json", 0))

	o := newTestOrchestrator(&fakeCreator{}, nil, store)
	defer o.Close()

	_, ok := o.LoadSaved(context.Background())
	assert.False(t, ok)

	_, exists, err := store.Get(context.Background(), ProgressKeyFor("legal-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}
