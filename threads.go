package mach

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Thread is a send right to one thread of a Task, obtained from Threads or
// SelectThread. It is only meaningful while its Task is open and the thread
// is alive.
type Thread struct {
	task  *Task
	right *portRight
}

// ThreadIdentity is THREAD_IDENTIFIER_INFO.
type ThreadIdentity struct {
	ThreadID          uint64 `json:"thread_id"`
	Handle            uint64 `json:"thread_handle"`
	DispatchQueueAddr uint64 `json:"dispatch_qaddr"`
}

// ThreadBasicInfo is THREAD_BASIC_INFO.
type ThreadBasicInfo struct {
	UserTimeSeconds        int32 `json:"user_time_s"`
	UserTimeMicroseconds   int32 `json:"user_time_us"`
	SystemTimeSeconds      int32 `json:"system_time_s"`
	SystemTimeMicroseconds int32 `json:"system_time_us"`
	CPUUsage               int32 `json:"cpu_usage"`
	Policy                 int32 `json:"policy"`
	RunState               int32 `json:"run_state"`
	Flags                  int32 `json:"flags"`
	SuspendCount           int32 `json:"suspend_count"`
	SleepTime              int32 `json:"sleep_time"`
}

// Scheduling policies reported in ThreadBasicInfo.Policy.
const (
	PolicyNull      = 0
	PolicyTimeshare = 1
	PolicyRR        = 2
	PolicyFIFO      = 4
)

// ThreadExtendedInfo is THREAD_EXTENDED_INFO.
type ThreadExtendedInfo struct {
	UserTime    uint64 `json:"user_time"`
	SystemTime  uint64 `json:"system_time"`
	CPUUsage    int32  `json:"cpu_usage"`
	Policy      int32  `json:"policy"`
	RunState    int32  `json:"run_state"`
	Flags       int32  `json:"flags"`
	SleepTime   int32  `json:"sleep_time"`
	CurPriority int32  `json:"cur_priority"`
	Priority    int32  `json:"priority"`
	MaxPriority int32  `json:"max_priority"`
	Name        string `json:"name" struc:"[64]byte"`
}

// Threads returns a snapshot of the task's threads. Threads created or
// destroyed afterwards are not reflected. Each returned Thread holds a port
// that Close (or the owning Task's Close) gives back.
func (t *Task) Threads() ([]*Thread, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.closeMu.Unlock()
	return t.threads()
}

func (t *Task) threads() ([]*Thread, error) {
	ports, kr := t.kernel.Threads(t.port)
	if err := kernErr(kr); err != nil {
		return nil, fmt.Errorf("failed to list threads of pid %d: %w", t.pid, err)
	}
	recordThreadEnumeration()

	out := make([]*Thread, 0, len(ports))
	for _, port := range ports {
		out = append(out, t.newThread(port))
	}
	if len(out) == 0 {
		return nil, invariant("Threads", "task_threads returned no threads for pid %d", t.pid)
	}
	t.threadLog.WithField("count", len(out)).Debug("listed threads")
	return out, nil
}

func (t *Task) newThread(port Port) *Thread {
	th := &Thread{task: t, right: &portRight{port: port}}
	t.trackRight(th.right)
	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(th, (*Thread).finalize)
	return th
}

// SelectThread picks the thread with the highest kernel thread id. When ids
// tie the first thread listed wins. Ports of the threads not picked are
// released before returning.
func (t *Task) SelectThread() (*Thread, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.closeMu.Unlock()

	threads, err := t.threads()
	if err != nil {
		return nil, err
	}

	var (
		best   *Thread
		bestID uint64
	)
	for _, th := range threads {
		ident, err := th.Identity()
		if err != nil {
			for _, other := range threads {
				other.Close()
			}
			return nil, err
		}
		if best == nil || ident.ThreadID > bestID {
			best, bestID = th, ident.ThreadID
		}
	}
	for _, th := range threads {
		if th != best {
			th.Close()
		}
	}

	t.threadLog.WithFields(logrus.Fields{
		"thread":    best.Port(),
		"thread_id": bestID,
	}).Debug("selected thread")
	return best, nil
}

// Port returns the raw thread port name.
func (th *Thread) Port() Port { return th.right.port }

// Task returns the task the thread was enumerated from.
func (th *Thread) Task() *Task { return th.task }

// Close releases the thread port. Idempotent.
func (th *Thread) Close() error {
	if th == nil {
		return nil
	}
	err := th.right.release(th.task.kernel)
	th.task.forgetRight(th.right)
	runtime.SetFinalizer(th, nil)
	if err != nil {
		return fmt.Errorf("failed to release thread port %d: %w", th.right.port, err)
	}
	return nil
}

// finalize is called by the garbage collector as a safety net
func (th *Thread) finalize() {
	if th == nil {
		return
	}
	if th.right.mu.TryLock() {
		closed := th.right.closed
		th.right.mu.Unlock()
		if !closed {
			th.Close() // Best effort cleanup
		}
	}
}

// lock holds the thread's port right open for the duration of a call.
// Callers must unlock on success.
func (th *Thread) lock() error {
	if th == nil {
		return fmt.Errorf("mach: thread is nil")
	}
	th.right.mu.Lock()
	if th.right.closed {
		th.right.mu.Unlock()
		return ErrThreadClosed
	}
	return nil
}

// threadInfo fills v from thread_info and checks the kernel returned exactly
// v's element count.
func (th *Thread) threadInfo(op string, flavor ThreadInfoFlavor, v any) error {
	want, err := wordCount(v)
	if err != nil {
		return err
	}
	if err := th.lock(); err != nil {
		return err
	}
	buf := make([]uint32, want)
	count, kr := th.task.kernel.ThreadInfo(th.right.port, flavor, buf)
	th.right.mu.Unlock()

	if err := kernErr(kr); err != nil {
		return fmt.Errorf("failed to get thread info flavor %d for thread %d: %w", flavor, th.right.port, err)
	}
	if int(count) != want {
		return invariant(op, "thread_info flavor %d returned %d words, want %d", flavor, count, want)
	}
	return decodeWords(buf, v)
}

// Identity returns the kernel-assigned thread id and dispatch queue address.
func (th *Thread) Identity() (ThreadIdentity, error) {
	var ident ThreadIdentity
	if err := th.threadInfo("Identity", ThreadIdentifierInfoFlavor, &ident); err != nil {
		return ThreadIdentity{}, err
	}
	th.task.threadLog.WithFields(logrus.Fields{
		"thread":    th.right.port,
		"thread_id": ident.ThreadID,
		"dispatch":  fmt.Sprintf("0x%x", ident.DispatchQueueAddr),
	}).Debug("thread identity")
	return ident, nil
}

// BasicInfo returns scheduling and run state for the thread.
func (th *Thread) BasicInfo() (ThreadBasicInfo, error) {
	var info ThreadBasicInfo
	if err := th.threadInfo("BasicInfo", ThreadBasicInfoFlavor, &info); err != nil {
		return ThreadBasicInfo{}, err
	}
	return info, nil
}

// ExtendedInfo returns priority details and the thread name.
func (th *Thread) ExtendedInfo() (ThreadExtendedInfo, error) {
	var info ThreadExtendedInfo
	if err := th.threadInfo("ExtendedInfo", ThreadExtendedInfoFlavor, &info); err != nil {
		return ThreadExtendedInfo{}, err
	}
	info.Name = strings.TrimRight(info.Name, "\x00")
	return info, nil
}
