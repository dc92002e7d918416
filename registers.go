package mach

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ThreadState64 is x86_thread_state64_t. Field order is the kernel layout.
type ThreadState64 struct {
	RAX    uint64 `json:"rax"`
	RBX    uint64 `json:"rbx"`
	RCX    uint64 `json:"rcx"`
	RDX    uint64 `json:"rdx"`
	RDI    uint64 `json:"rdi"`
	RSI    uint64 `json:"rsi"`
	RBP    uint64 `json:"rbp"`
	RSP    uint64 `json:"rsp"`
	R8     uint64 `json:"r8"`
	R9     uint64 `json:"r9"`
	R10    uint64 `json:"r10"`
	R11    uint64 `json:"r11"`
	R12    uint64 `json:"r12"`
	R13    uint64 `json:"r13"`
	R14    uint64 `json:"r14"`
	R15    uint64 `json:"r15"`
	RIP    uint64 `json:"rip"`
	RFLAGS uint64 `json:"rflags"`
	CS     uint64 `json:"cs"`
	FS     uint64 `json:"fs"`
	GS     uint64 `json:"gs"`
}

// RegisterNames lists the ThreadState64 registers in kernel order.
var RegisterNames = []string{
	"rax", "rbx", "rcx", "rdx", "rdi", "rsi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "rflags", "cs", "fs", "gs",
}

// PC returns the instruction pointer.
func (s *ThreadState64) PC() uint64 { return s.RIP }

// SP returns the stack pointer.
func (s *ThreadState64) SP() uint64 { return s.RSP }

func (s *ThreadState64) field(name string) (*uint64, error) {
	switch strings.ToLower(name) {
	case "rax":
		return &s.RAX, nil
	case "rbx":
		return &s.RBX, nil
	case "rcx":
		return &s.RCX, nil
	case "rdx":
		return &s.RDX, nil
	case "rdi":
		return &s.RDI, nil
	case "rsi":
		return &s.RSI, nil
	case "rbp":
		return &s.RBP, nil
	case "rsp", "sp":
		return &s.RSP, nil
	case "r8":
		return &s.R8, nil
	case "r9":
		return &s.R9, nil
	case "r10":
		return &s.R10, nil
	case "r11":
		return &s.R11, nil
	case "r12":
		return &s.R12, nil
	case "r13":
		return &s.R13, nil
	case "r14":
		return &s.R14, nil
	case "r15":
		return &s.R15, nil
	case "rip", "pc":
		return &s.RIP, nil
	case "rflags":
		return &s.RFLAGS, nil
	case "cs":
		return &s.CS, nil
	case "fs":
		return &s.FS, nil
	case "gs":
		return &s.GS, nil
	}
	return nil, fmt.Errorf("mach: unknown register %q", name)
}

// Get returns the register called name. "pc" and "sp" are accepted as
// aliases for rip and rsp.
func (s *ThreadState64) Get(name string) (uint64, error) {
	p, err := s.field(name)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// Set assigns v to the register called name.
func (s *ThreadState64) Set(name string, v uint64) error {
	p, err := s.field(name)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Registers reads the thread's general purpose registers. The thread is not
// suspended, so a running thread yields a racy snapshot.
func (th *Thread) Registers() (*ThreadState64, error) {
	state := new(ThreadState64)
	want, err := wordCount(state)
	if err != nil {
		return nil, err
	}

	if err := th.lock(); err != nil {
		return nil, err
	}
	buf := make([]uint32, want)
	count, kr := th.task.kernel.ThreadGetState(th.right.port, X86ThreadState64, buf)
	th.right.mu.Unlock()

	if err := kernErr(kr); err != nil {
		return nil, fmt.Errorf("failed to get state of thread %d: %w", th.right.port, err)
	}
	if int(count) != want {
		return nil, invariant("Registers", "thread_get_state returned %d words, want %d", count, want)
	}
	if err := decodeWords(buf, state); err != nil {
		return nil, err
	}

	recordRegisterOp()
	th.task.threadLog.WithFields(logrus.Fields{
		"thread": th.right.port,
		"rip":    fmt.Sprintf("0x%x", state.RIP),
	}).Debug("read registers")
	return state, nil
}

// SetRegisters replaces the thread's general purpose registers with state in
// a single thread_set_state call.
func (th *Thread) SetRegisters(state *ThreadState64) error {
	if state == nil {
		return fmt.Errorf("mach: nil thread state")
	}
	words, err := encodeWords(state)
	if err != nil {
		return err
	}

	if err := th.lock(); err != nil {
		return err
	}
	kr := th.task.kernel.ThreadSetState(th.right.port, X86ThreadState64, words)
	th.right.mu.Unlock()

	if err := kernErr(kr); err != nil {
		return fmt.Errorf("failed to set state of thread %d: %w", th.right.port, err)
	}

	recordRegisterOp()
	th.task.threadLog.WithFields(logrus.Fields{
		"thread": th.right.port,
		"rip":    fmt.Sprintf("0x%x", state.RIP),
	}).Debug("wrote registers")
	return nil
}
