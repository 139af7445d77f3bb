package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/openmath"
	"scscp.dev/scscpd/registry"
)

func TestInsertAndLookup(t *testing.T) {
	r := registry.New()
	_, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	r.Insert("c1", call.ReturnObject, cancel)

	e, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", e.CallID)
	assert.Equal(t, call.ReturnObject, e.ReturnType)
	assert.Equal(t, 1, r.Len())
}

func TestInsertDuplicatePanics(t *testing.T) {
	r := registry.New()
	_, cancel := context.WithCancelCause(context.Background())
	r.Insert("c1", call.ReturnObject, cancel)
	assert.Panics(t, func() {
		r.Insert("c1", call.ReturnObject, cancel)
	})
}

func TestCancelUnknownIsNoop(t *testing.T) {
	r := registry.New()
	assert.False(t, r.Cancel("missing"))
}

func TestCancelKnownStopsContext(t *testing.T) {
	r := registry.New()
	ctx, cancel := context.WithCancelCause(context.Background())
	r.Insert("c1", call.ReturnObject, cancel)

	ok := r.Cancel("c1")
	require.True(t, ok)

	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), registry.ErrTerminated)
}

func TestRemoveForgetsEntry(t *testing.T) {
	r := registry.New()
	_, cancel := context.WithCancelCause(context.Background())
	r.Insert("c1", call.ReturnObject, cancel)
	r.Remove("c1")

	_, ok := r.Lookup("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestStoreAndRedeemResult(t *testing.T) {
	r := registry.New()
	token := r.StoreResult(openmath.IntObj(42))

	v, ok := r.RedeemResult(token)
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int)

	_, ok = r.RedeemResult(token)
	assert.False(t, ok, "redeeming twice should fail")
}

func TestCancelAll(t *testing.T) {
	r := registry.New()
	ctx1, cancel1 := context.WithCancelCause(context.Background())
	ctx2, cancel2 := context.WithCancelCause(context.Background())
	r.Insert("c1", call.ReturnObject, cancel1)
	r.Insert("c2", call.ReturnObject, cancel2)

	r.CancelAll()

	<-ctx1.Done()
	<-ctx2.Done()
	assert.True(t, errors.Is(context.Cause(ctx1), registry.ErrReaped))
	assert.True(t, errors.Is(context.Cause(ctx2), registry.ErrReaped))
}

func TestReapCancelsStaleTasks(t *testing.T) {
	r := registry.New()
	ctx, cancel := context.WithCancelCause(context.Background())
	r.Insert("c1", call.ReturnObject, cancel)

	reapCtx, stopReap := context.WithCancel(context.Background())
	defer stopReap()
	go r.Reap(reapCtx, 5*time.Millisecond, 0)

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, context.Cause(ctx), registry.ErrReaped)
	case <-time.After(time.Second):
		t.Fatal("task was not reaped in time")
	}
}
