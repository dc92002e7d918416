package mach

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// kern_return_t values from <mach/kern_return.h>
const (
	KERN_SUCCESS             uint32 = 0
	KERN_INVALID_ADDRESS     uint32 = 1
	KERN_PROTECTION_FAILURE  uint32 = 2
	KERN_INVALID_ARGUMENT    uint32 = 4
	KERN_FAILURE             uint32 = 5
	KERN_RESOURCE_SHORTAGE   uint32 = 6
	KERN_NO_ACCESS           uint32 = 8
	KERN_MEMORY_FAILURE      uint32 = 9
	KERN_MEMORY_ERROR        uint32 = 10
	KERN_ABORTED             uint32 = 14
	KERN_INVALID_NAME        uint32 = 15
	KERN_INVALID_TASK        uint32 = 16
	KERN_INVALID_RIGHT       uint32 = 17
	KERN_INVALID_VALUE       uint32 = 18
	KERN_INVALID_CAPABILITY  uint32 = 20
	KERN_EXCEPTION_PROTECTED uint32 = 32
	KERN_TERMINATED          uint32 = 37
	KERN_NOT_SUPPORTED       uint32 = 46
	KERN_OPERATION_TIMED_OUT uint32 = 49
)

// Kind is the closed taxonomy kernel return codes are translated into.
type Kind int

const (
	KindSuccess Kind = iota
	KindInvalidAddress
	KindProtectionFailure
	KindInvalidArgument
	KindFailure
	KindResourceShortage
	KindNoAccess
	KindMemoryFailure
	KindMemoryError
	KindAborted
	KindInvalidName
	KindInvalidTask
	KindInvalidRight
	KindInvalidValue
	KindInvalidCapability
	KindExceptionProtected
	KindTerminated
	KindNotSupported
	KindOperationTimedOut
	// KindOther is any code outside the table; the raw value stays in KernError.Code.
	KindOther
)

var kindNames = [...]string{
	KindSuccess:            "success",
	KindInvalidAddress:     "invalid address",
	KindProtectionFailure:  "protection failure",
	KindInvalidArgument:    "invalid argument",
	KindFailure:            "failure",
	KindResourceShortage:   "resource shortage",
	KindNoAccess:           "no access",
	KindMemoryFailure:      "memory failure",
	KindMemoryError:        "memory error",
	KindAborted:            "aborted",
	KindInvalidName:        "invalid name",
	KindInvalidTask:        "invalid task",
	KindInvalidRight:       "invalid right",
	KindInvalidValue:       "invalid value",
	KindInvalidCapability:  "invalid capability",
	KindExceptionProtected: "exception protected",
	KindTerminated:         "terminated",
	KindNotSupported:       "not supported",
	KindOperationTimedOut:  "operation timed out",
	KindOther:              "other",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Translate maps a raw kern_return_t onto its Kind. Unknown codes map to
// KindOther.
func Translate(raw uint32) Kind {
	switch raw {
	case KERN_SUCCESS:
		return KindSuccess
	case KERN_INVALID_ADDRESS:
		return KindInvalidAddress
	case KERN_PROTECTION_FAILURE:
		return KindProtectionFailure
	case KERN_INVALID_ARGUMENT:
		return KindInvalidArgument
	case KERN_FAILURE:
		return KindFailure
	case KERN_RESOURCE_SHORTAGE:
		return KindResourceShortage
	case KERN_NO_ACCESS:
		return KindNoAccess
	case KERN_MEMORY_FAILURE:
		return KindMemoryFailure
	case KERN_MEMORY_ERROR:
		return KindMemoryError
	case KERN_ABORTED:
		return KindAborted
	case KERN_INVALID_NAME:
		return KindInvalidName
	case KERN_INVALID_TASK:
		return KindInvalidTask
	case KERN_INVALID_RIGHT:
		return KindInvalidRight
	case KERN_INVALID_VALUE:
		return KindInvalidValue
	case KERN_INVALID_CAPABILITY:
		return KindInvalidCapability
	case KERN_EXCEPTION_PROTECTED:
		return KindExceptionProtected
	case KERN_TERMINATED:
		return KindTerminated
	case KERN_NOT_SUPPORTED:
		return KindNotSupported
	case KERN_OPERATION_TIMED_OUT:
		return KindOperationTimedOut
	default:
		return KindOther
	}
}

// KernError wraps a non-success kern_return_t.
// Code stores the raw value so KindOther errors keep the kernel's diagnosis.
type KernError struct {
	Code    uint32
	message string // Optional custom message for specific errors
}

// Kind translates the stored code.
func (e KernError) Kind() Kind {
	return Translate(e.Code)
}

func (e KernError) Error() string {
	if e.message != "" {
		return e.message
	}
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// Is reports whether target is a KernError carrying the same kernel code, so
// wrapped errors match the sentinels below with errors.Is. Targets with a
// custom message only match errors carrying that same message.
func (e KernError) Is(target error) bool {
	var t KernError
	switch v := target.(type) {
	case KernError:
		t = v
	case *KernError:
		if v == nil {
			return false
		}
		t = *v
	default:
		return false
	}
	return t.Code == e.Code && (t.message == "" || t.message == e.message)
}

// detailedError provides full error context for development
func (e KernError) detailedError() string {
	switch e.Code {
	case KERN_SUCCESS:
		return "mach: success"
	case KERN_INVALID_ADDRESS:
		return "mach: invalid address (KERN_INVALID_ADDRESS) - address is not mapped in the target task"
	case KERN_PROTECTION_FAILURE:
		return "mach: protection failure (KERN_PROTECTION_FAILURE) - requested protection exceeds the region's maximum"
	case KERN_INVALID_ARGUMENT:
		return "mach: invalid argument (KERN_INVALID_ARGUMENT) - check port, flavor and count values"
	case KERN_FAILURE:
		return "mach: failure (KERN_FAILURE) - task_for_pid denied: run as root or sign with com.apple.security.cs.debugger"
	case KERN_RESOURCE_SHORTAGE:
		return "mach: resource shortage (KERN_RESOURCE_SHORTAGE) - kernel could not allocate"
	case KERN_NO_ACCESS:
		return "mach: no access (KERN_NO_ACCESS) - access to the region is denied"
	case KERN_MEMORY_FAILURE:
		return "mach: memory failure (KERN_MEMORY_FAILURE) - backing object could not supply data"
	case KERN_MEMORY_ERROR:
		return "mach: memory error (KERN_MEMORY_ERROR) - error while reading backing store"
	case KERN_ABORTED:
		return "mach: aborted (KERN_ABORTED) - operation was interrupted"
	case KERN_INVALID_NAME:
		return "mach: invalid name (KERN_INVALID_NAME) - port name does not denote a right"
	case KERN_INVALID_TASK:
		return "mach: invalid task (KERN_INVALID_TASK) - target task is gone or port is stale"
	case KERN_INVALID_RIGHT:
		return "mach: invalid right (KERN_INVALID_RIGHT) - port name does not carry the needed right"
	case KERN_INVALID_VALUE:
		return "mach: invalid value (KERN_INVALID_VALUE) - value out of range"
	case KERN_INVALID_CAPABILITY:
		return "mach: invalid capability (KERN_INVALID_CAPABILITY) - capability is not valid for this call"
	case KERN_EXCEPTION_PROTECTED:
		return "mach: exception protected (KERN_EXCEPTION_PROTECTED) - exception ports are protected"
	case KERN_TERMINATED:
		return "mach: terminated (KERN_TERMINATED) - target object has terminated"
	case KERN_NOT_SUPPORTED:
		return "mach: not supported (KERN_NOT_SUPPORTED) - flavor or operation unsupported by this kernel"
	case KERN_OPERATION_TIMED_OUT:
		return "mach: operation timed out (KERN_OPERATION_TIMED_OUT)"
	default:
		return fmt.Sprintf("mach: unknown kern_return_t 0x%08x - see <mach/kern_return.h>", e.Code)
	}
}

// sanitizedError provides minimal error information for production
func (e KernError) sanitizedError() string {
	k := e.Kind()
	if k == KindOther {
		return "mach: kernel error"
	}
	return "mach: " + k.String()
}

// isProductionEnv checks if we're running in production environment
func isProductionEnv() bool {
	env := os.Getenv("MACH_ENV")
	if env == "production" || env == "prod" {
		return true
	}

	// Check if debug mode is explicitly disabled
	if debug := os.Getenv("MACH_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}

	return false
}

func kernErr(code uint32) error {
	if code == KERN_SUCCESS {
		return nil
	}
	recordKernelError()
	return KernError{Code: code}
}

// Sentinels for errors.Is matching against kernel failures.
var (
	ErrInvalidAddress    = KernError{Code: KERN_INVALID_ADDRESS}
	ErrProtectionFailure = KernError{Code: KERN_PROTECTION_FAILURE}
	ErrInvalidArgument   = KernError{Code: KERN_INVALID_ARGUMENT}
	ErrFailure           = KernError{Code: KERN_FAILURE}
	ErrNoAccess          = KernError{Code: KERN_NO_ACCESS}
	ErrInvalidName       = KernError{Code: KERN_INVALID_NAME}
	ErrInvalidTask       = KernError{Code: KERN_INVALID_TASK}
	ErrInvalidRight      = KernError{Code: KERN_INVALID_RIGHT}
	ErrInvalidCapability = KernError{Code: KERN_INVALID_CAPABILITY}
	ErrTerminated        = KernError{Code: KERN_TERMINATED}
	ErrNotSupported      = KernError{Code: KERN_NOT_SUPPORTED}
	ErrOperationTimedOut = KernError{Code: KERN_OPERATION_TIMED_OUT}
)

// Common specific errors for API consumers
var (
	ErrTaskClosed          = &KernError{Code: KERN_INVALID_TASK, message: "mach: task is closed"}
	ErrThreadClosed        = &KernError{Code: KERN_INVALID_NAME, message: "mach: thread is closed"}
	ErrUnsupportedPlatform = errors.New("mach: not supported on this platform")
	ErrNotImplemented      = errors.New("mach: not implemented")
)

// ErrInvariant matches every *InvariantError.
var ErrInvariant = errors.New("mach: invariant violation")

// InvariantError reports a kernel reply that contradicts what the call
// guarantees (short reads, element-count mismatches, empty thread lists). It
// is never a normal outcome and is kept apart from KernError.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("mach: invariant violation in %s: %s", e.Op, e.Detail)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

func invariant(op, format string, args ...any) error {
	recordInvariantViolation()
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ErrProtectionEscalation matches every *ProtectionEscalationError.
var ErrProtectionEscalation = errors.New("mach: protection escalation failed")

// ProtectionEscalationError is returned when the page at Addr still lacks
// full permissions after Attempts rounds of copy-then-all.
type ProtectionEscalationError struct {
	Addr     uint64
	Attempts int
	Last     VMProt
}

func (e *ProtectionEscalationError) Error() string {
	return fmt.Sprintf("mach: protection escalation failed at 0x%x after %d attempts (last protection %s)", e.Addr, e.Attempts, e.Last)
}

func (e *ProtectionEscalationError) Is(target error) bool { return target == ErrProtectionEscalation }
