// Package mach provides Go access to the Mach task, thread and virtual
// memory calls of another process on macOS x86-64.
//
// It covers acquiring a task port, reading and writing words of the target's
// memory, querying and raising page protection, enumerating threads and
// reading or replacing their general purpose registers.
//
// # Requirements
//
//   - macOS on x86-64
//   - Root, or the com.apple.security.cs.debugger entitlement, for task_for_pid
//   - The target must not be hardened against debugging
//
// # Basic Usage
//
// Acquire the task port of a process:
//
//	task, err := mach.AcquireTask(pid)
//	if err != nil {
//		log.Fatal("Failed to acquire task:", err)
//	}
//	defer task.Close()
//
// Memory access:
//
//	word, err := task.ReadWord(addr)
//	if err != nil {
//		log.Fatal("Failed to read:", err)
//	}
//
//	// Raises protection to rwx if needed and restores it afterwards
//	if err := task.WriteWord(addr, word^1); err != nil {
//		log.Fatal("Failed to write:", err)
//	}
//
// Thread state:
//
//	thread, err := task.SelectThread()
//	if err != nil {
//		log.Fatal("Failed to select thread:", err)
//	}
//	defer thread.Close()
//
//	regs, err := thread.Registers()
//	if err != nil {
//		log.Fatal("Failed to read registers:", err)
//	}
//	fmt.Printf("rip: 0x%x\n", regs.PC())
//
// # Error Handling
//
// Kernel return codes surface as KernError values. Compare with errors.Is
// against the sentinels (ErrInvalidAddress, ErrProtectionFailure, ...) or
// inspect Kind(). A kernel reply that breaks an expected shape, such as a
// short read or an empty thread list, is an *InvariantError matching
// ErrInvariant.
//
// # Resource Management
//
// Tasks and threads hold port rights and must be closed with Close(). Closing
// a task also releases every thread it handed out. Finalizers provide safety
// net cleanup.
//
// # Testing
//
// Every operation goes through the Kernel interface. Pass WithKernel to
// AcquireTask to substitute an implementation that does not touch the host.
package mach
