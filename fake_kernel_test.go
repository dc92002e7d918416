package mach

import (
	"sort"
	"sync"
)

// fakeRegion is one mapping in a fakeKernel task.
type fakeRegion struct {
	base, size uint64
	prot, max  VMProt
	data       []byte

	// stuck regions accept mach_vm_protect but never change protection.
	stuck bool
}

type fakeThread struct {
	ident ThreadIdentity
	basic ThreadBasicInfo
	ext   ThreadExtendedInfo
	state ThreadState64
}

// fakeKernel is an in-memory Kernel for one target task.
type fakeKernel struct {
	mu sync.Mutex

	pid      int
	taskPort Port
	regions  []*fakeRegion
	threads  map[Port]*fakeThread
	order    []Port

	// Overrides for failure injection.
	taskForPidCode  uint32
	threadsCode     uint32
	readDelta       int
	infoCountDelta  int
	stateCountDelta int

	deallocated  map[Port]int
	protectCalls []VMProt
	writes       int
}

func newFakeKernel(pid int) *fakeKernel {
	return &fakeKernel{
		pid:         pid,
		taskPort:    0x1103,
		threads:     make(map[Port]*fakeThread),
		deallocated: make(map[Port]int),
	}
}

func (k *fakeKernel) addRegion(base, size uint64, prot, maxProt VMProt) *fakeRegion {
	r := &fakeRegion{base: base, size: size, prot: prot, max: maxProt, data: make([]byte, size)}
	k.regions = append(k.regions, r)
	sort.Slice(k.regions, func(i, j int) bool { return k.regions[i].base < k.regions[j].base })
	return r
}

func (k *fakeKernel) addThread(port Port, id uint64) *fakeThread {
	th := &fakeThread{ident: ThreadIdentity{ThreadID: id, Handle: uint64(port) << 12}}
	k.threads[port] = th
	k.order = append(k.order, port)
	return th
}

func (k *fakeKernel) released(port Port) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.deallocated[port]
}

func (k *fakeKernel) find(addr uint64) *fakeRegion {
	for _, r := range k.regions {
		if addr >= r.base && addr < r.base+r.size {
			return r
		}
	}
	return nil
}

// span returns the regions covering [addr, addr+size), or nil when any byte
// in the range is unmapped.
func (k *fakeKernel) span(addr, size uint64) []*fakeRegion {
	var out []*fakeRegion
	for cur, end := addr, addr+size; cur < end; {
		r := k.find(cur)
		if r == nil {
			return nil
		}
		out = append(out, r)
		cur = r.base + r.size
	}
	return out
}

func (k *fakeKernel) TaskForPid(pid int) (Port, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.taskForPidCode != KERN_SUCCESS {
		return PortNull, k.taskForPidCode
	}
	if pid != k.pid {
		return PortNull, KERN_FAILURE
	}
	return k.taskPort, KERN_SUCCESS
}

func (k *fakeKernel) DeallocatePort(port Port) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if port == PortNull {
		return KERN_INVALID_NAME
	}
	k.deallocated[port]++
	return KERN_SUCCESS
}

func (k *fakeKernel) Region(task Port, addr uint64) (Region, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if task != k.taskPort {
		return Region{}, KERN_INVALID_ARGUMENT
	}
	for _, r := range k.regions {
		if addr < r.base+r.size {
			return Region{Base: r.base, Size: r.size, Protection: r.prot, MaxProtection: r.max}, KERN_SUCCESS
		}
	}
	return Region{}, KERN_INVALID_ADDRESS
}

func (k *fakeKernel) Protect(task Port, addr, size uint64, setMaximum bool, prot VMProt) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if task != k.taskPort || setMaximum {
		return KERN_INVALID_ARGUMENT
	}
	rs := k.span(addr, size)
	if rs == nil {
		return KERN_INVALID_ADDRESS
	}
	k.protectCalls = append(k.protectCalls, prot)
	want := prot &^ VMProtCopy
	for _, r := range rs {
		// VM_PROT_COPY lifts the maximum for the private copy.
		if prot&VMProtCopy != 0 {
			r.max = VMProtAll
		}
		if want&^r.max != 0 {
			return KERN_PROTECTION_FAILURE
		}
	}
	for _, r := range rs {
		if !r.stuck {
			r.prot = want
		}
	}
	return KERN_SUCCESS
}

func (k *fakeKernel) Read(task Port, addr, size uint64) ([]byte, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if task != k.taskPort {
		return nil, KERN_INVALID_ARGUMENT
	}
	rs := k.span(addr, size)
	if rs == nil {
		return nil, KERN_INVALID_ADDRESS
	}
	out := make([]byte, 0, size)
	for _, r := range rs {
		if r.prot&VMProtRead == 0 {
			return nil, KERN_PROTECTION_FAILURE
		}
		lo := max(addr, r.base) - r.base
		hi := min(addr+size, r.base+r.size) - r.base
		out = append(out, r.data[lo:hi]...)
	}
	switch {
	case k.readDelta < 0:
		out = out[:len(out)+k.readDelta]
	case k.readDelta > 0:
		out = append(out, make([]byte, k.readDelta)...)
	}
	return out, KERN_SUCCESS
}

func (k *fakeKernel) Write(task Port, addr uint64, data []byte) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if task != k.taskPort {
		return KERN_INVALID_ARGUMENT
	}
	rs := k.span(addr, uint64(len(data)))
	if rs == nil {
		return KERN_INVALID_ADDRESS
	}
	for _, r := range rs {
		if r.prot&VMProtWrite == 0 {
			return KERN_PROTECTION_FAILURE
		}
	}
	var off int
	for _, r := range rs {
		lo := max(addr, r.base) - r.base
		off += copy(r.data[lo:], data[off:])
	}
	k.writes++
	return KERN_SUCCESS
}

func (k *fakeKernel) Threads(task Port) ([]Port, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.threadsCode != KERN_SUCCESS {
		return nil, k.threadsCode
	}
	if task != k.taskPort {
		return nil, KERN_INVALID_ARGUMENT
	}
	return append([]Port(nil), k.order...), KERN_SUCCESS
}

func (k *fakeKernel) ThreadInfo(thread Port, flavor ThreadInfoFlavor, out []uint32) (uint32, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	th, ok := k.threads[thread]
	if !ok {
		return 0, KERN_INVALID_ARGUMENT
	}
	var v any
	switch flavor {
	case ThreadIdentifierInfoFlavor:
		v = &th.ident
	case ThreadBasicInfoFlavor:
		v = &th.basic
	case ThreadExtendedInfoFlavor:
		v = &th.ext
	default:
		return 0, KERN_INVALID_ARGUMENT
	}
	words, err := encodeWords(v)
	if err != nil || len(out) < len(words) {
		return 0, KERN_INVALID_ARGUMENT
	}
	copy(out, words)
	return uint32(len(words) + k.infoCountDelta), KERN_SUCCESS
}

func (k *fakeKernel) ThreadGetState(thread Port, flavor ThreadStateFlavor, out []uint32) (uint32, uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	th, ok := k.threads[thread]
	if !ok || flavor != X86ThreadState64 {
		return 0, KERN_INVALID_ARGUMENT
	}
	words, err := encodeWords(&th.state)
	if err != nil || len(out) < len(words) {
		return 0, KERN_INVALID_ARGUMENT
	}
	copy(out, words)
	return uint32(len(words) + k.stateCountDelta), KERN_SUCCESS
}

func (k *fakeKernel) ThreadSetState(thread Port, flavor ThreadStateFlavor, in []uint32) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	th, ok := k.threads[thread]
	if !ok || flavor != X86ThreadState64 {
		return KERN_INVALID_ARGUMENT
	}
	if err := decodeWords(in, &th.state); err != nil {
		return KERN_INVALID_ARGUMENT
	}
	return KERN_SUCCESS
}
