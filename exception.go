package mach

// ExceptionType is exception_type_t (EXC_BAD_ACCESS, EXC_BREAKPOINT, ...).
type ExceptionType int32

// ExceptionHandler receives mach_exc messages delivered to an exception port.
// There is no server loop yet; the interface fixes the callback shapes for
// one.
type ExceptionHandler interface {
	CatchExceptionRaise(exceptionPort, thread, task Port, exc ExceptionType, code []int64) error
	CatchExceptionRaiseState(exceptionPort Port, exc ExceptionType, code []int64,
		flavor ThreadStateFlavor, oldState []uint32) (newFlavor ThreadStateFlavor, newState []uint32, err error)
	CatchExceptionRaiseStateIdentity(exceptionPort, thread, task Port, exc ExceptionType, code []int64,
		flavor ThreadStateFlavor, oldState []uint32) (newFlavor ThreadStateFlavor, newState []uint32, err error)
}

// UnimplementedExceptionHandler rejects every exception with
// ErrNotImplemented. Embed it to implement only some callbacks.
type UnimplementedExceptionHandler struct{}

var _ ExceptionHandler = UnimplementedExceptionHandler{}

func (UnimplementedExceptionHandler) CatchExceptionRaise(Port, Port, Port, ExceptionType, []int64) error {
	return ErrNotImplemented
}

func (UnimplementedExceptionHandler) CatchExceptionRaiseState(Port, ExceptionType, []int64,
	ThreadStateFlavor, []uint32) (ThreadStateFlavor, []uint32, error) {
	return 0, nil, ErrNotImplemented
}

func (UnimplementedExceptionHandler) CatchExceptionRaiseStateIdentity(Port, Port, Port, ExceptionType, []int64,
	ThreadStateFlavor, []uint32) (ThreadStateFlavor, []uint32, error) {
	return 0, nil, ErrNotImplemented
}
