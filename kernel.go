package mach

// Port is a Mach port name (mach_port_t) in the caller's IPC space. Task and
// thread capabilities are both ports.
type Port uint32

// PortNull is MACH_PORT_NULL.
const PortNull Port = 0

// ThreadInfoFlavor selects the structure returned by thread_info.
type ThreadInfoFlavor uint32

const (
	ThreadBasicInfoFlavor      ThreadInfoFlavor = 3 // THREAD_BASIC_INFO
	ThreadIdentifierInfoFlavor ThreadInfoFlavor = 4 // THREAD_IDENTIFIER_INFO
	ThreadExtendedInfoFlavor   ThreadInfoFlavor = 5 // THREAD_EXTENDED_INFO
)

// ThreadStateFlavor selects a CPU register layout for thread_get_state and
// thread_set_state.
type ThreadStateFlavor uint32

// X86ThreadState64 is x86_THREAD_STATE64, the only flavor modeled here.
const X86ThreadState64 ThreadStateFlavor = 4

// Region is the subset of vm_region_basic_info_64 used by the protection
// manager, together with the region bounds reported by mach_vm_region.
type Region struct {
	Base          uint64
	Size          uint64
	Protection    VMProt
	MaxProtection VMProt
}

// Kernel is the boundary onto the host's Mach task, thread and VM calls.
//
// Every method returns the raw kern_return_t of the underlying call. Callers
// translate it with Translate / kernErr; implementations never interpret it.
// Implementations release any kernel-owned out-of-line buffers (vm_read data,
// task_threads arrays) before returning.
type Kernel interface {
	// TaskForPid is task_for_pid(mach_task_self(), pid, &task).
	TaskForPid(pid int) (Port, uint32)
	// DeallocatePort is mach_port_deallocate(mach_task_self(), port).
	DeallocatePort(port Port) uint32

	// Region is mach_vm_region with VM_REGION_BASIC_INFO_64. The returned
	// region contains addr or is the first region above it.
	Region(task Port, addr uint64) (Region, uint32)
	// Protect is mach_vm_protect.
	Protect(task Port, addr, size uint64, setMaximum bool, prot VMProt) uint32
	// Read is mach_vm_read. len(data) is the byte count the kernel reported.
	Read(task Port, addr, size uint64) ([]byte, uint32)
	// Write is mach_vm_write.
	Write(task Port, addr uint64, data []byte) uint32

	// Threads is task_threads. The result owns one send right per thread.
	Threads(task Port) ([]Port, uint32)
	// ThreadInfo is thread_info. out is sized to the flavor's expected count
	// and the returned count is what the kernel filled in.
	ThreadInfo(thread Port, flavor ThreadInfoFlavor, out []uint32) (count uint32, kr uint32)
	// ThreadGetState is thread_get_state.
	ThreadGetState(thread Port, flavor ThreadStateFlavor, out []uint32) (count uint32, kr uint32)
	// ThreadSetState is thread_set_state.
	ThreadSetState(thread Port, flavor ThreadStateFlavor, in []uint32) uint32
}
