//go:build darwin && amd64

package mach

/*
#include <stdlib.h>
#include <string.h>
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <mach/mach_traps.h>

static kern_return_t go_task_for_pid(int pid, mach_port_t *task) {
	return task_for_pid(mach_task_self(), pid, task);
}

static kern_return_t go_port_deallocate(mach_port_t port) {
	return mach_port_deallocate(mach_task_self(), port);
}

// Fills in the region containing addr, or the next one above it.
static kern_return_t go_vm_region(mach_port_t task, mach_vm_address_t addr,
		mach_vm_address_t *base, mach_vm_size_t *size, int *prot, int *max_prot) {
	vm_region_basic_info_data_64_t info;
	mach_msg_type_number_t count = VM_REGION_BASIC_INFO_COUNT_64;
	mach_port_t object_name = MACH_PORT_NULL;
	mach_vm_address_t address = addr;
	mach_vm_size_t region_size = 0;

	kern_return_t kr = mach_vm_region(task, &address, &region_size, VM_REGION_BASIC_INFO_64,
		(vm_region_info_t)&info, &count, &object_name);
	if (kr != KERN_SUCCESS) {
		return kr;
	}
	*base = address;
	*size = region_size;
	*prot = info.protection;
	*max_prot = info.max_protection;
	return KERN_SUCCESS;
}

static kern_return_t go_vm_protect(mach_port_t task, mach_vm_address_t addr, mach_vm_size_t size,
		int set_max, int prot) {
	return mach_vm_protect(task, addr, size, set_max ? TRUE : FALSE, (vm_prot_t)prot);
}

// Copies the kernel's out-of-line buffer into dst and gives it back.
static kern_return_t go_vm_read(mach_port_t task, mach_vm_address_t addr, mach_vm_size_t size,
		void *dst, mach_msg_type_number_t *out_count) {
	vm_offset_t data = 0;
	mach_msg_type_number_t count = 0;

	kern_return_t kr = mach_vm_read(task, addr, size, &data, &count);
	if (kr != KERN_SUCCESS) {
		return kr;
	}
	mach_msg_type_number_t n = count < size ? count : (mach_msg_type_number_t)size;
	memcpy(dst, (void *)data, n);
	*out_count = count;
	mach_vm_deallocate(mach_task_self(), data, count);
	return KERN_SUCCESS;
}

static kern_return_t go_vm_write(mach_port_t task, mach_vm_address_t addr, void *src,
		mach_msg_type_number_t count) {
	return mach_vm_write(task, addr, (vm_offset_t)src, count);
}

static kern_return_t go_task_threads(mach_port_t task, thread_act_array_t *list,
		mach_msg_type_number_t *count) {
	return task_threads(task, list, count);
}

static void go_release_thread_list(thread_act_array_t list, mach_msg_type_number_t count) {
	mach_vm_deallocate(mach_task_self(), (mach_vm_address_t)list, count * sizeof(thread_act_t));
}

static mach_port_t go_thread_at(thread_act_array_t list, mach_msg_type_number_t i) {
	return list[i];
}

static kern_return_t go_thread_info(mach_port_t thread, int flavor, void *out,
		mach_msg_type_number_t *count) {
	return thread_info(thread, (thread_flavor_t)flavor, (thread_info_t)out, count);
}

static kern_return_t go_thread_get_state(mach_port_t thread, int flavor, void *out,
		mach_msg_type_number_t *count) {
	return thread_get_state(thread, (thread_state_flavor_t)flavor, (thread_state_t)out, count);
}

static kern_return_t go_thread_set_state(mach_port_t thread, int flavor, void *in,
		mach_msg_type_number_t count) {
	return thread_set_state(thread, (thread_state_flavor_t)flavor, (thread_state_t)in, count);
}
*/
import "C"

import (
	"math"
	"unsafe"
)

type hostKernel struct{}

// NewHostKernel returns the Kernel backed by the running macOS kernel.
func NewHostKernel() (Kernel, error) {
	return hostKernel{}, nil
}

func (hostKernel) TaskForPid(pid int) (Port, uint32) {
	if pid < 0 || pid > math.MaxInt32 {
		return PortNull, KERN_INVALID_ARGUMENT
	}
	var task C.mach_port_t
	kr := C.go_task_for_pid(C.int(pid), &task)
	return Port(task), uint32(kr)
}

func (hostKernel) DeallocatePort(port Port) uint32 {
	return uint32(C.go_port_deallocate(C.mach_port_t(port)))
}

func (hostKernel) Region(task Port, addr uint64) (Region, uint32) {
	var (
		base          C.mach_vm_address_t
		size          C.mach_vm_size_t
		prot, maxProt C.int
	)
	kr := C.go_vm_region(C.mach_port_t(task), C.mach_vm_address_t(addr),
		&base, &size, &prot, &maxProt)
	if kr != C.KERN_SUCCESS {
		return Region{}, uint32(kr)
	}
	return Region{
		Base:          uint64(base),
		Size:          uint64(size),
		Protection:    VMProt(prot),
		MaxProtection: VMProt(maxProt),
	}, KERN_SUCCESS
}

func (hostKernel) Protect(task Port, addr, size uint64, setMaximum bool, prot VMProt) uint32 {
	setMax := C.int(0)
	if setMaximum {
		setMax = 1
	}
	return uint32(C.go_vm_protect(C.mach_port_t(task), C.mach_vm_address_t(addr),
		C.mach_vm_size_t(size), setMax, C.int(prot)))
}

func (hostKernel) Read(task Port, addr, size uint64) ([]byte, uint32) {
	if size == 0 || size > math.MaxUint32 {
		return nil, KERN_INVALID_ARGUMENT
	}
	buf := make([]byte, size)
	var count C.mach_msg_type_number_t
	kr := C.go_vm_read(C.mach_port_t(task), C.mach_vm_address_t(addr), C.mach_vm_size_t(size),
		unsafe.Pointer(&buf[0]), &count)
	if kr != C.KERN_SUCCESS {
		return nil, uint32(kr)
	}
	switch n := uint64(count); {
	case n < size:
		buf = buf[:n]
	case n > size:
		// Only size bytes were copied. Keep the reported length so the
		// caller sees the mismatch.
		buf = append(buf, make([]byte, n-size)...)
	}
	return buf, KERN_SUCCESS
}

func (hostKernel) Write(task Port, addr uint64, data []byte) uint32 {
	if len(data) == 0 || uint64(len(data)) > math.MaxUint32 {
		return KERN_INVALID_ARGUMENT
	}
	return uint32(C.go_vm_write(C.mach_port_t(task), C.mach_vm_address_t(addr),
		unsafe.Pointer(&data[0]), C.mach_msg_type_number_t(len(data))))
}

func (hostKernel) Threads(task Port) ([]Port, uint32) {
	var (
		list  C.thread_act_array_t
		count C.mach_msg_type_number_t
	)
	kr := C.go_task_threads(C.mach_port_t(task), &list, &count)
	if kr != C.KERN_SUCCESS {
		return nil, uint32(kr)
	}
	defer C.go_release_thread_list(list, count)

	ports := make([]Port, 0, int(count))
	for i := C.mach_msg_type_number_t(0); i < count; i++ {
		ports = append(ports, Port(C.go_thread_at(list, i)))
	}
	return ports, KERN_SUCCESS
}

func (hostKernel) ThreadInfo(thread Port, flavor ThreadInfoFlavor, out []uint32) (uint32, uint32) {
	if len(out) == 0 {
		return 0, KERN_INVALID_ARGUMENT
	}
	count := C.mach_msg_type_number_t(len(out))
	kr := C.go_thread_info(C.mach_port_t(thread), C.int(flavor), unsafe.Pointer(&out[0]), &count)
	return uint32(count), uint32(kr)
}

func (hostKernel) ThreadGetState(thread Port, flavor ThreadStateFlavor, out []uint32) (uint32, uint32) {
	if len(out) == 0 {
		return 0, KERN_INVALID_ARGUMENT
	}
	count := C.mach_msg_type_number_t(len(out))
	kr := C.go_thread_get_state(C.mach_port_t(thread), C.int(flavor), unsafe.Pointer(&out[0]), &count)
	return uint32(count), uint32(kr)
}

func (hostKernel) ThreadSetState(thread Port, flavor ThreadStateFlavor, in []uint32) uint32 {
	if len(in) == 0 {
		return KERN_INVALID_ARGUMENT
	}
	return uint32(C.go_thread_set_state(C.mach_port_t(thread), C.int(flavor),
		unsafe.Pointer(&in[0]), C.mach_msg_type_number_t(len(in))))
}
