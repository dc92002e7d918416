package mach

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// VMProt is a vm_prot_t protection mask.
type VMProt int32

const (
	VMProtNone    VMProt = 0x00
	VMProtRead    VMProt = 0x01
	VMProtWrite   VMProt = 0x02
	VMProtExecute VMProt = 0x04
	VMProtCopy    VMProt = 0x10 // VM_PROT_COPY: force a private copy-on-write mapping

	VMProtAll = VMProtRead | VMProtWrite | VMProtExecute
)

func (p VMProt) String() string {
	var sb strings.Builder
	for _, b := range []struct {
		bit VMProt
		c   byte
	}{{VMProtRead, 'r'}, {VMProtWrite, 'w'}, {VMProtExecute, 'x'}} {
		if p&b.bit != 0 {
			sb.WriteByte(b.c)
		} else {
			sb.WriteByte('-')
		}
	}
	if p&VMProtCopy != 0 {
		sb.WriteByte('c')
	}
	return sb.String()
}

var (
	cachedPageSize int
	cachedPageMask uint64
	pageSizeOnce   sync.Once
)

// PageSize returns the host page size, cached after the first call.
func PageSize() int {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return cachedPageSize
}

// TruncPage rounds addr down to its page boundary.
func TruncPage(addr uint64) uint64 {
	PageSize()
	return addr &^ cachedPageMask
}

// QueryProtection reports the region containing addr and its current and
// maximum protection.
func (t *Task) QueryProtection(addr uint64) (Region, error) {
	if err := t.lock(); err != nil {
		return Region{}, err
	}
	defer t.closeMu.Unlock()
	return t.queryProtection(addr)
}

func (t *Task) queryProtection(addr uint64) (Region, error) {
	region, kr := t.kernel.Region(t.port, addr)
	if err := kernErr(kr); err != nil {
		return Region{}, fmt.Errorf("failed to query region at 0x%x: %w", addr, err)
	}
	// mach_vm_region skips forward to the next mapped region.
	if region.Base > addr {
		recordKernelError()
		return Region{}, fmt.Errorf("address 0x%x is not mapped (next region at 0x%x): %w", addr, region.Base, ErrInvalidAddress)
	}
	t.memLog.WithFields(logrus.Fields{
		"addr": fmt.Sprintf("0x%x", addr),
		"base": fmt.Sprintf("0x%x", region.Base),
		"prot": region.Protection.String(),
		"max":  region.MaxProtection.String(),
	}).Debug("queried region")
	return region, nil
}

// SetProtection sets the protection of the page or pages holding the word at
// addr to exactly prot. Existing bits are not merged.
func (t *Task) SetProtection(addr uint64, prot VMProt) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.closeMu.Unlock()
	return t.setProtection(addr, WordSize, prot)
}

func (t *Task) setProtection(addr, size uint64, prot VMProt) error {
	kr := t.kernel.Protect(t.port, addr, size, false, prot)
	if err := kernErr(kr); err != nil {
		return fmt.Errorf("failed to set protection %s at 0x%x: %w", prot, addr, err)
	}
	recordProtectionChange()
	t.memLog.WithFields(logrus.Fields{
		"addr": fmt.Sprintf("0x%x", addr),
		"size": size,
	}).Debugf("set protection %s", prot)
	return nil
}

// pageSpan is the part of a word that falls in one page, along with the
// protection that page had before ensureWritable touched it.
type pageSpan struct {
	addr, size uint64
	previous   VMProt
	changed    bool
}

// wordSpans splits the word at addr at its page boundary. Pages keep their
// own protection, so a word that straddles two pages is raised and restored
// one page at a time.
func wordSpans(addr uint64) []pageSpan {
	end := addr + WordSize
	next := TruncPage(addr) + uint64(PageSize())
	if next < addr || end <= next {
		return []pageSpan{{addr: addr, size: WordSize}}
	}
	return []pageSpan{
		{addr: addr, size: next - addr},
		{addr: next, size: end - next},
	}
}

func anyChanged(spans []pageSpan) bool {
	for _, sp := range spans {
		if sp.changed {
			return true
		}
	}
	return false
}

// EnsureWritable raises the page holding addr to rwx. A page that is not
// already rwx first gets VM_PROT_COPY, which gives the target a private copy,
// and then rwx. The pair is retried until the region reports rwx or
// Config.MaxProtectAttempts rounds have run. A word that straddles a page
// boundary has both pages raised.
//
// previous is the protection the first page had before any change and
// changed reports whether a change was attempted on either page.
func (t *Task) EnsureWritable(addr uint64) (previous VMProt, changed bool, err error) {
	if err := t.lock(); err != nil {
		return 0, false, err
	}
	defer t.closeMu.Unlock()

	spans, err := t.ensureWritable(addr)
	if len(spans) > 0 {
		previous = spans[0].previous
	}
	return previous, anyChanged(spans), err
}

// ensureWritable raises every page under the word at addr. On error the
// returned spans cover the pages visited so far, so the caller can restore
// them.
func (t *Task) ensureWritable(addr uint64) ([]pageSpan, error) {
	spans := wordSpans(addr)
	for i := range spans {
		if err := t.ensurePageWritable(&spans[i]); err != nil {
			return spans[:i+1], err
		}
	}
	return spans, nil
}

func (t *Task) ensurePageWritable(sp *pageSpan) error {
	for attempt := 0; ; attempt++ {
		region, err := t.queryProtection(sp.addr)
		if err != nil {
			return err
		}
		if attempt == 0 {
			sp.previous = region.Protection
		}
		if region.Protection == VMProtAll {
			return nil
		}
		if attempt == t.cfg.MaxProtectAttempts {
			return &ProtectionEscalationError{Addr: sp.addr, Attempts: attempt, Last: region.Protection}
		}
		sp.changed = true
		if err := t.setProtection(sp.addr, sp.size, VMProtCopy); err != nil {
			return err
		}
		if err := t.setProtection(sp.addr, sp.size, VMProtAll); err != nil {
			return err
		}
	}
}

// restoreProtection gives every changed page its previous protection back.
// All pages are attempted and the first error is returned.
func (t *Task) restoreProtection(spans []pageSpan) error {
	var firstErr error
	for _, sp := range spans {
		if !sp.changed {
			continue
		}
		if err := t.setProtection(sp.addr, sp.size, sp.previous); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
