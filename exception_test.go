package mach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type breakpointOnly struct {
	UnimplementedExceptionHandler
	hits int
}

func (h *breakpointOnly) CatchExceptionRaise(_, _, _ Port, _ ExceptionType, _ []int64) error {
	h.hits++
	return nil
}

func TestUnimplementedExceptionHandler(t *testing.T) {
	var h ExceptionHandler = UnimplementedExceptionHandler{}

	assert.ErrorIs(t, h.CatchExceptionRaise(1, 2, 3, 6, nil), ErrNotImplemented)
	_, _, err := h.CatchExceptionRaiseState(1, 6, nil, X86ThreadState64, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
	_, _, err = h.CatchExceptionRaiseStateIdentity(1, 2, 3, 6, nil, X86ThreadState64, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestEmbeddedExceptionHandler(t *testing.T) {
	h := &breakpointOnly{}
	var eh ExceptionHandler = h

	assert.NoError(t, eh.CatchExceptionRaise(1, 2, 3, 6, []int64{1}))
	assert.Equal(t, 1, h.hits)
	_, _, err := eh.CatchExceptionRaiseState(1, 6, nil, X86ThreadState64, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}
