// Package registry implements the per-session task registry: the map from
// call_id to a cancellable, in-flight procedure invocation.
package registry // import "scscp.dev/scscpd/registry"

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scscp.dev/scscpd/call"
	"scscp.dev/scscpd/openmath"
)

// Entry is a single task registration: a call_id, the cancellation handle
// for its goroutine, its declared return type, and when it started.
type Entry struct {
	CallID      string
	ReturnType  call.ReturnType
	StartInstant time.Time
	cancel      context.CancelCauseFunc
}

// ErrTerminated is the cancellation cause recorded when a task is cancelled
// by an explicit client `terminate` frame, as opposed to registry teardown.
var ErrTerminated = fmt.Errorf("scscp: task terminated by client")

// ErrReaped is the cancellation cause recorded when the idle reaper cancels
// an orphaned task.
var ErrReaped = fmt.Errorf("scscp: task reaped: owning session gone")

// Registry is the task registry owned by exactly one session. All methods
// assume single-threaded ownership from that session's task, except Reap,
// which a background goroutine may call concurrently; a mutex guards the
// shared map for that one exception.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry

	// results holds values produced for option_return_cookie calls, keyed by
	// a minted cookie token, until redeemed or the registry is torn down.
	results map[string]openmath.Object
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		results: make(map[string]openmath.Object),
	}
}

// Insert registers callID with the given return type and cancel function.
// It panics if callID is already registered: the session checks Lookup and
// rejects a call_id that is already active before dispatch, so a collision
// here is a programmer error, not a client-triggerable one.
func (r *Registry) Insert(callID string, returnType call.ReturnType, cancel context.CancelCauseFunc) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[callID]; ok {
		panic(fmt.Sprintf("registry: duplicate call_id %q", callID))
	}
	entry := &Entry{
		CallID:       callID,
		ReturnType:   returnType,
		StartInstant: time.Now(),
		cancel:       cancel,
	}
	r.entries[callID] = entry
	return entry
}

// Lookup returns the entry for callID, if any.
func (r *Registry) Lookup(callID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[callID]
	return e, ok
}

// Cancel cancels the task registered under callID with ErrTerminated. It is
// a no-op if callID is not registered; the caller (the session) is
// responsible for reporting an unknown-id `terminate` to the client.
func (r *Registry) Cancel(callID string) bool {
	r.mu.Lock()
	e, ok := r.entries[callID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel(ErrTerminated)
	return true
}

// CancelAll cancels every in-flight task with ErrReaped, used when the
// owning session tears down.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.cancel(ErrReaped)
	}
}

// Remove deregisters callID. Called by the completion callback once the
// response for callID has been written.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callID)
}

// StoreResult mints a cookie token for value and retains it for later
// redemption, returning the token.
func (r *Registry) StoreResult(value openmath.Object) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.results[token] = value
	r.mu.Unlock()
	return token
}

// RedeemResult returns and forgets the value stored under token.
func (r *Registry) RedeemResult(token string) (openmath.Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.results[token]
	if ok {
		delete(r.results, token)
	}
	return v, ok
}

// Len reports the number of in-flight tasks, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reap runs until ctx is done, periodically cancelling tasks that have run
// longer than maxAge with ErrReaped. It is the supplemented idle-task sweep:
// the session starts it on entering Idle the first time and its ctx is
// cancelled when the session enters Closing.
func (r *Registry) Reap(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapOnce(maxAge)
		}
	}
}

func (r *Registry) reapOnce(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	var stale []*Entry
	for _, e := range r.entries {
		if e.StartInstant.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	r.mu.Unlock()
	for _, e := range stale {
		e.cancel(ErrReaped)
	}
}
