package blockfirst

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	e := NewError(ErrCorrectness)
	assert.Equal(t, "blockfirst: seek-first on empty table did not report not found", e.Error())

	w := WrapError(ErrProtocol, errors.New("disk full"))
	assert.Equal(t, "blockfirst: store protocol failure: disk full", w.Error())

	f := Errorf(ErrInvalidConfig, "threads must be >= 1, got %d", 0)
	assert.Equal(t, "blockfirst: invalid configuration: threads must be >= 1, got 0", f.Error())

	u := NewError(ErrorCode(42))
	assert.Equal(t, "blockfirst: unknown error code 42", u.Error())
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("seek: %w", NewError(ErrNotFound))
	assert.True(t, errors.Is(err, ErrNotFoundError))
	assert.False(t, errors.Is(err, NewError(ErrLockTimeout)))

	inner := errors.New("boom")
	assert.ErrorIs(t, WrapError(ErrSetup, inner), inner)
}

func TestPredicates(t *testing.T) {
	timeout := WrapError(ErrLockTimeout, errors.New("busy"))
	wrapped := WrapError(ErrCorrectness, timeout)

	assert.True(t, IsCorrectness(wrapped))
	assert.True(t, IsLockTimeout(wrapped), "codes are found through the chain")
	assert.False(t, IsProtocol(wrapped))

	// Only the outermost error decides not found.
	assert.True(t, IsNotFound(ErrNotFoundError))
	assert.False(t, IsNotFound(WrapError(ErrCorrectness, ErrNotFoundError)))
	assert.False(t, IsNotFound(nil))

	stopped := WrapError(ErrStopped, context.Canceled)
	assert.True(t, IsStopped(stopped))
	assert.ErrorIs(t, stopped, context.Canceled)

	assert.True(t, IsSetup(NewError(ErrSetup)))
	assert.True(t, IsExclusion(NewError(ErrExclusion)))
	assert.True(t, IsSerialization(fmt.Errorf("x: %w", NewError(ErrSerialization))))
	assert.False(t, IsSetup(errors.New("plain")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, Success, Code(nil))
	assert.Equal(t, ErrExclusion, Code(NewError(ErrExclusion)))
	assert.Equal(t, ErrProtocol, Code(errors.New("plain")))
	assert.Equal(t, ErrorCode(-30798), ErrNotFound)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeFound},
		{ErrNotFoundError, OutcomeNotFound},
		{fmt.Errorf("wrapped: %w", ErrNotFoundError), OutcomeNotFound},
		{NewError(ErrLockTimeout), OutcomeError},
		{errors.New("io"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "not-found", OutcomeNotFound.String())
	assert.Equal(t, "found", OutcomeFound.String())
	assert.Equal(t, "error", OutcomeError.String())
}

func TestFirstFailure(t *testing.T) {
	stop := NewError(ErrStopped)
	fail := NewError(ErrCorrectness)

	require.Nil(t, firstFailure(nil, nil))
	assert.Same(t, fail, firstFailure(stop, fail))
	assert.Same(t, fail, firstFailure(fail, stop))
	assert.Same(t, stop, firstFailure(stop, nil))
	assert.Same(t, stop, firstFailure(nil, stop))
}
