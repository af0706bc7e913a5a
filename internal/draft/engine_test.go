package draft

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/kvstore"
)

type sendRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
	block    chan struct{}
}

func (r *sendRecorder) send(_ context.Context, _ string, payload map[string]any) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *sendRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func newTestEngine(t *testing.T, rec *sendRecorder, validate ValidateFunc) *Engine {
	t.Helper()
	return NewEngine(Config{
		InspectionID: "insp-1",
		Store:        kvstore.NewMemoryStore(),
		Send:         rec.send,
		Validate:     validate,
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "inspection-form-insp-1", Key("insp-1"))
	assert.Equal(t, "inspection-form-draft", Key(""))
}

func TestTickSendsOnlyWhenDirty(t *testing.T) {
	rec := &sendRecorder{}
	e := newTestEngine(t, rec, nil)
	ctx := context.Background()

	// Nothing entered yet.
	e.tick(ctx)
	assert.Zero(t, rec.count())

	e.SetPayload(map[string]any{"notes": "first pass"})
	assert.True(t, e.Dirty())
	e.tick(ctx)
	assert.Equal(t, 1, rec.count())
	assert.False(t, e.Dirty())

	// Identical payload on the next tick is a no-op.
	e.SetPayload(map[string]any{"notes": "first pass"})
	e.tick(ctx)
	assert.Equal(t, 1, rec.count())

	// A structural change is dirty again.
	e.SetPayload(map[string]any{"notes": "second pass"})
	e.tick(ctx)
	assert.Equal(t, 2, rec.count())
}

func TestTickSkipsWhenOffline(t *testing.T) {
	rec := &sendRecorder{}
	e := newTestEngine(t, rec, nil)
	e.SetPayload(map[string]any{"notes": "offline edit"})

	e.mu.Lock()
	e.online = false
	e.mu.Unlock()

	e.tick(context.Background())
	assert.Zero(t, rec.count())
	assert.True(t, e.Dirty())
}

func TestTickValidationFailureSkipsSend(t *testing.T) {
	rec := &sendRecorder{}
	validate := func(payload map[string]any) error {
		if payload["notes"] == "" {
			return errors.New("notes required")
		}
		return nil
	}
	e := newTestEngine(t, rec, validate)
	ctx := context.Background()

	e.SetPayload(map[string]any{"notes": ""})
	e.tick(ctx)

	assert.Zero(t, rec.count())
	require.Error(t, e.Err())
	assert.True(t, IsValidationError(e.Err()))
	assert.True(t, e.Dirty())

	// A corrected payload clears the error on the next tick.
	e.SetPayload(map[string]any{"notes": "fixed"})
	e.tick(ctx)
	assert.Equal(t, 1, rec.count())
	assert.NoError(t, e.Err())
}

func TestTickSendFailureKeepsDirty(t *testing.T) {
	rec := &sendRecorder{err: apperrors.Unavailable("network down")}
	e := newTestEngine(t, rec, nil)
	ctx := context.Background()

	e.SetPayload(map[string]any{"notes": "unsent"})
	e.tick(ctx)

	require.Error(t, e.Err())
	assert.True(t, e.Dirty())

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	e.tick(ctx)
	assert.Equal(t, 1, rec.count())
	assert.NoError(t, e.Err())
}

func TestTickDropsReentrantSaves(t *testing.T) {
	rec := &sendRecorder{block: make(chan struct{})}
	e := newTestEngine(t, rec, nil)
	ctx := context.Background()

	e.SetPayload(map[string]any{"notes": "slow save"})

	done := make(chan struct{})
	go func() {
		e.tick(ctx)
		close(done)
	}()

	// Wait for the first save to be in flight, then tick again.
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.inFlight
	}, time.Second, time.Millisecond)

	e.tick(ctx)

	close(rec.block)
	<-done
	assert.Equal(t, 1, rec.count())
}

func TestReconnectTriggersOneExtraSave(t *testing.T) {
	rec := &sendRecorder{}
	e := NewEngine(Config{
		InspectionID: "insp-1",
		Store:        kvstore.NewMemoryStore(),
		Send:         rec.send,
		Interval:     time.Hour, // keep the ticker out of the way
		SettleDelay:  5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	e.SetOnline(false)
	e.SetPayload(map[string]any{"notes": "written offline"})
	e.SetOnline(true)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestSnapshotRoundTrip(t *testing.T) {
	rec := &sendRecorder{}
	e := newTestEngine(t, rec, nil)
	ctx := context.Background()

	e.SetPayload(map[string]any{"notes": "saved work"})
	e.tick(ctx)

	snap, ok := e.LoadSnapshot(ctx)
	require.True(t, ok)
	assert.Equal(t, "saved work", snap.Payload["notes"])
	assert.False(t, snap.LastSaved.IsZero())
}

func TestLoadSnapshotDegradesOnCorruptData(t *testing.T) {
	store := kvstore.NewMemoryStore()
	e := NewEngine(Config{InspectionID: "insp-1", Store: store, Send: (&sendRecorder{}).send})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key("insp-1"), "not json", 0))

	_, ok := e.LoadSnapshot(ctx)
	assert.False(t, ok)
}

func TestDiscard(t *testing.T) {
	rec := &sendRecorder{}
	e := newTestEngine(t, rec, nil)
	ctx := context.Background()

	e.SetPayload(map[string]any{"notes": "to discard"})
	e.tick(ctx)

	require.NoError(t, e.Discard(ctx))
	assert.False(t, e.Dirty())

	_, ok := e.LoadSnapshot(ctx)
	assert.False(t, ok)
}
