package mach

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// WordSize is the width of every memory transfer: one native 64-bit word.
const WordSize = 8

// ReadWord reads the native-endian 64-bit word at addr in the target.
func (t *Task) ReadWord(addr uint64) (int64, error) {
	if err := t.lock(); err != nil {
		return 0, err
	}
	defer t.closeMu.Unlock()

	data, kr := t.kernel.Read(t.port, addr, WordSize)
	if err := kernErr(kr); err != nil {
		return 0, fmt.Errorf("failed to read %d bytes at 0x%x: %w", WordSize, addr, err)
	}
	if len(data) != WordSize {
		return 0, invariant("ReadWord", "kernel returned %d bytes for a %d byte read at 0x%x", len(data), WordSize, addr)
	}
	value := int64(hostOrder.Uint64(data))

	recordMemoryRead()
	t.memLog.WithFields(logrus.Fields{
		"addr":  fmt.Sprintf("0x%x", addr),
		"value": value,
	}).Debug("read word")
	return value, nil
}

// WriteWord writes value as a native-endian 64-bit word at addr in the
// target, raising the page to rwx first if needed. A word that straddles a
// page boundary has each page raised and restored on its own. With
// Config.RestoreProtection set, a raised page gets its previous protection
// back after the write; otherwise it stays rwx.
func (t *Task) WriteWord(addr uint64, value int64) (err error) {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.closeMu.Unlock()

	spans, err := t.ensureWritable(addr)
	if t.cfg.RestoreProtection {
		defer func() {
			if rerr := t.restoreProtection(spans); rerr != nil && err == nil {
				err = fmt.Errorf("wrote 0x%x but could not restore protection: %w", addr, rerr)
			}
		}()
	}
	if err != nil {
		return err
	}

	data := make([]byte, WordSize)
	hostOrder.PutUint64(data, uint64(value))
	if err := kernErr(t.kernel.Write(t.port, addr, data)); err != nil {
		return fmt.Errorf("failed to write %d bytes at 0x%x: %w", WordSize, addr, err)
	}

	recordMemoryWrite()
	t.memLog.WithFields(logrus.Fields{
		"addr":     fmt.Sprintf("0x%x", addr),
		"value":    value,
		"restored": anyChanged(spans) && t.cfg.RestoreProtection,
	}).Debug("wrote word")
	return nil
}

// ReadUint64 is ReadWord for unsigned values.
func (t *Task) ReadUint64(addr uint64) (uint64, error) {
	v, err := t.ReadWord(addr)
	return uint64(v), err
}

// WriteUint64 is WriteWord for unsigned values.
func (t *Task) WriteUint64(addr, value uint64) error {
	return t.WriteWord(addr, int64(value))
}
