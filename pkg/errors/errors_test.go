package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
		text   string
	}{
		{"not found", NotFound("device", "d1"), KindNotFound, http.StatusNotFound, "device d1: not found"},
		{"invalid", Invalid("scene", "unknown action %q", "fly"), KindInvalid, http.StatusBadRequest, `scene: unknown action "fly"`},
		{"transient", Transient("snapshot", stderrors.New("redis down")), KindTransient, http.StatusServiceUnavailable, "snapshot: temporarily unavailable: redis down"},
		{"plain", stderrors.New("boom"), KindUnknown, http.StatusInternalServerError, "boom"},
		{"app error", ErrBadRequest, KindUnknown, http.StatusBadRequest, "code=400, message=Bad request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, GetStatusCode(tt.err))
			assert.Equal(t, tt.text, tt.err.Error())
		})
	}
}

func TestDomainErrorWrapped(t *testing.T) {
	err := fmt.Errorf("update failed: %w", NotFound("device", "x"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsInvalid(err))

	cause := stderrors.New("disk full")
	assert.ErrorIs(t, Transient("snapshot", cause), cause)
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Minute})
	now := time.Now()
	cb.now = func() time.Time { return now }

	fail := func(context.Context) error { return stderrors.New("fail") }
	ok := func(context.Context) error { return nil }

	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
	require.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	// rejected without calling fn
	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.Equal(t, ErrCircuitOpen, err)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestRecover(t *testing.T) {
	err := Recover(nil, "task", func() { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in task")

	assert.NoError(t, Recover(nil, "task", func() {}))
}
