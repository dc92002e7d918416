package mach

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blacktop/go-mach/internal/logflags"
)

// Task is a send right to a target process's task port. It is required by
// every memory and thread operation on that process and must be released
// with Close.
type Task struct {
	pid    int
	port   Port
	kernel Kernel
	cfg    *Config
	id     uuid.UUID

	log       *logrus.Entry
	memLog    *logrus.Entry
	threadLog *logrus.Entry

	closed  bool
	closeMu sync.Mutex // Protect against concurrent Close() and finalizer

	rightsMu sync.Mutex
	rights   map[*portRight]struct{} // thread ports handed out and not yet released
}

// Option configures AcquireTask.
type Option func(*Task)

// WithKernel routes every call through k instead of the host kernel.
func WithKernel(k Kernel) Option {
	return func(t *Task) { t.kernel = k }
}

// WithConfig sets the write-path configuration.
func WithConfig(cfg *Config) Option {
	return func(t *Task) { t.cfg = cfg }
}

// WithLogger routes every layer through l. The memory and thread loggers are
// derived from it with their own layer field, so l's level and output apply
// to all three.
func WithLogger(l *logrus.Entry) Option {
	return func(t *Task) { t.log = l }
}

// AcquireTask obtains the task port for pid from the kernel.
func AcquireTask(pid int, opts ...Option) (*Task, error) {
	start := time.Now()

	t := &Task{
		pid:    pid,
		id:     uuid.New(),
		rights: make(map[*portRight]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.kernel == nil {
		k, err := NewHostKernel()
		if err != nil {
			return nil, err
		}
		t.kernel = k
	}
	if t.cfg == nil {
		t.cfg = loadConfigOrDefault()
	}
	if err := t.cfg.Validate(); err != nil {
		return nil, err
	}

	t.setupLoggers()

	port, kr := t.kernel.TaskForPid(pid)
	if err := kernErr(kr); err != nil {
		t.log.WithError(err).Debug("task_for_pid failed")
		return nil, fmt.Errorf("failed to acquire task port for pid %d: %w", pid, err)
	}
	t.port = port
	t.log.WithField("task", port).Debug("acquired task port")

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(t, (*Task).finalize)

	recordTaskAcquire(time.Since(start))
	return t, nil
}

// setupLoggers builds the per-layer loggers. Config.Log turns on the layers
// named in Config.LogOutput for this task even when logflags.Setup was never
// called.
func (t *Task) setupLoggers() {
	fields := logrus.Fields{"pid": t.pid, "session": t.id.String()}
	if t.log != nil {
		t.memLog = t.log.WithField("layer", "memory").WithFields(fields)
		t.threadLog = t.log.WithField("layer", "thread").WithFields(fields)
		t.log = t.log.WithField("layer", "task").WithFields(fields)
		return
	}
	var task, memory, thread bool
	if t.cfg.Log {
		task, memory, thread = logflags.ParseLayers(t.cfg.LogOutput)
	}
	t.log = logflags.TaskLogger(task).WithFields(fields)
	t.memLog = logflags.MemoryLogger(memory).WithFields(fields)
	t.threadLog = logflags.ThreadLogger(thread).WithFields(fields)
}

func loadConfigOrDefault() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Pid returns the process id the task was acquired for.
func (t *Task) Pid() int { return t.pid }

// Port returns the raw task port name.
func (t *Task) Port() Port { return t.port }

// ID returns the session id attached to this task's log lines.
func (t *Task) ID() uuid.UUID { return t.id }

// Config returns the configuration the task was acquired with.
func (t *Task) Config() Config { return *t.cfg }

// Close releases every outstanding thread port and then the task port.
// Idempotent.
func (t *Task) Close() error {
	if t == nil {
		return nil
	}

	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.closed {
		return nil // Already closed
	}

	var firstErr error
	for _, r := range t.takeRights() {
		if err := r.release(t.kernel); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to release thread port %d: %w", r.port, err)
		}
	}

	if err := kernErr(t.kernel.DeallocatePort(t.port)); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to release task port %d: %w", t.port, err)
	}

	t.closed = true
	runtime.SetFinalizer(t, nil)

	recordTaskRelease()
	t.log.WithField("task", t.port).Debug("released task port")
	return firstErr
}

// finalize is called by the garbage collector as a safety net
func (t *Task) finalize() {
	if t == nil {
		return
	}
	// Use non-blocking lock to prevent deadlock in finalizers
	if t.closeMu.TryLock() {
		defer t.closeMu.Unlock()
		if !t.closed {
			t.closed = true
			for _, r := range t.takeRights() {
				r.release(t.kernel)
			}
			t.kernel.DeallocatePort(t.port)
			recordTaskRelease()
		}
	}
}

// lock acquires closeMu and fails if the task is closed. Callers must
// unlock on success.
func (t *Task) lock() error {
	if t == nil {
		return fmt.Errorf("mach: task is nil")
	}
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return ErrTaskClosed
	}
	return nil
}

func (t *Task) trackRight(r *portRight) {
	t.rightsMu.Lock()
	t.rights[r] = struct{}{}
	t.rightsMu.Unlock()
}

func (t *Task) forgetRight(r *portRight) {
	t.rightsMu.Lock()
	delete(t.rights, r)
	t.rightsMu.Unlock()
}

func (t *Task) takeRights() []*portRight {
	t.rightsMu.Lock()
	defer t.rightsMu.Unlock()
	out := make([]*portRight, 0, len(t.rights))
	for r := range t.rights {
		out = append(out, r)
	}
	t.rights = make(map[*portRight]struct{})
	return out
}

// portRight is one user reference on a port name owned by this process.
type portRight struct {
	mu     sync.Mutex
	port   Port
	closed bool
}

func (r *portRight) release(k Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	recordThreadRelease()
	return kernErr(k.DeallocatePort(r.port))
}
