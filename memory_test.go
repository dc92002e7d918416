package mach

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dataBase = 0x10000
	textBase = 0x20000
	roBase   = 0x40000
)

func newMemoryKernel() *fakeKernel {
	k := newFakeKernel(testPid)
	k.addRegion(dataBase, 0x4000, VMProtAll, VMProtAll)
	k.addRegion(textBase, 0x4000, VMProtRead|VMProtExecute, VMProtRead|VMProtExecute)
	k.addRegion(roBase, 0x1000, VMProtRead, VMProtRead)
	return k
}

func TestWriteReadRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 0x4142434445464748, math.MinInt64, math.MaxInt64}

	for _, base := range []uint64{dataBase, textBase, roBase} {
		k := newMemoryKernel()
		task := newTestTask(t, k, nil)
		for i, v := range values {
			addr := base + uint64(i)*WordSize
			require.NoError(t, task.WriteWord(addr, v))
			got, err := task.ReadWord(addr)
			require.NoError(t, err)
			assert.Equal(t, v, got, "addr 0x%x", addr)
		}
	}
}

func TestReadWordNativeEndian(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	hostOrder.PutUint64(k.regions[0].data[8:], 0x1122334455667788)
	got, err := task.ReadUint64(dataBase + 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), got)

	require.NoError(t, task.WriteUint64(dataBase+16, math.MaxUint64))
	assert.Equal(t, uint64(math.MaxUint64), hostOrder.Uint64(k.regions[0].data[16:]))
}

func TestReadWordShortRead(t *testing.T) {
	k := newMemoryKernel()
	k.readDelta = -4
	task := newTestTask(t, k, nil)

	_, err := task.ReadWord(dataBase)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "ReadWord", inv.Op)
}

func TestReadWordLongRead(t *testing.T) {
	k := newMemoryKernel()
	k.readDelta = 8
	task := newTestTask(t, k, nil)

	_, err := task.ReadWord(dataBase)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariant)

	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Contains(t, inv.Detail, "16 bytes")
}

func TestReadWordUnmapped(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	_, err := task.ReadWord(0x8)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestWriteWordUnmapped(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	// Between regions: mach_vm_region reports the next region up.
	err := task.WriteWord(0x30000, 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	// Past every region.
	err = task.WriteWord(0x90000, 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, k.writes)
}

func TestWriteWordRestoresProtection(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	require.NoError(t, task.WriteWord(textBase, 0x90909090))

	region, err := task.QueryProtection(textBase)
	require.NoError(t, err)
	assert.Equal(t, VMProtRead|VMProtExecute, region.Protection)
	assert.Equal(t, []VMProt{VMProtCopy, VMProtAll, VMProtRead | VMProtExecute}, k.protectCalls)
}

func TestWriteWordAcrossPages(t *testing.T) {
	ps := uint64(PageSize())
	boundary := 16 * ps
	k := newFakeKernel(testPid)
	k.addRegion(boundary-ps, ps, VMProtRead|VMProtExecute, VMProtRead|VMProtExecute)
	k.addRegion(boundary, ps, VMProtRead, VMProtRead)
	task := newTestTask(t, k, nil)

	addr := boundary - 4
	require.NoError(t, task.WriteWord(addr, 0x4142434445464748))
	got, err := task.ReadWord(addr)
	require.NoError(t, err)
	assert.Equal(t, int64(0x4142434445464748), got)

	// Each page gets its own protection back.
	low, err := task.QueryProtection(addr)
	require.NoError(t, err)
	assert.Equal(t, VMProtRead|VMProtExecute, low.Protection)
	high, err := task.QueryProtection(boundary)
	require.NoError(t, err)
	assert.Equal(t, VMProtRead, high.Protection)
	assert.Equal(t, []VMProt{
		VMProtCopy, VMProtAll,
		VMProtCopy, VMProtAll,
		VMProtRead | VMProtExecute, VMProtRead,
	}, k.protectCalls)
}

func TestWriteWordAcrossPagesSecondReadOnly(t *testing.T) {
	ps := uint64(PageSize())
	boundary := 16 * ps
	k := newFakeKernel(testPid)
	k.addRegion(boundary-ps, ps, VMProtAll, VMProtAll)
	k.addRegion(boundary, ps, VMProtRead, VMProtRead)
	task := newTestTask(t, k, nil)

	require.NoError(t, task.WriteWord(boundary-2, -1))
	assert.Equal(t, []VMProt{VMProtCopy, VMProtAll, VMProtRead}, k.protectCalls)

	high, err := task.QueryProtection(boundary)
	require.NoError(t, err)
	assert.Equal(t, VMProtRead, high.Protection)

	previous, changed, err := task.EnsureWritable(boundary - 2)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, VMProtAll, previous, "previous reports the first page")
}

func TestWordSpans(t *testing.T) {
	ps := uint64(PageSize())

	spans := wordSpans(ps)
	require.Len(t, spans, 1)
	assert.Equal(t, uint64(WordSize), spans[0].size)

	spans = wordSpans(ps - WordSize)
	require.Len(t, spans, 1)

	spans = wordSpans(ps - 3)
	require.Len(t, spans, 2)
	assert.Equal(t, pageSpan{addr: ps - 3, size: 3}, spans[0])
	assert.Equal(t, pageSpan{addr: ps, size: 5}, spans[1])

	spans = wordSpans(math.MaxUint64 - 3)
	require.Len(t, spans, 1)
}

func TestWriteWordLeavesPageWritable(t *testing.T) {
	k := newMemoryKernel()
	cfg := DefaultConfig()
	cfg.RestoreProtection = false
	task := newTestTask(t, k, cfg)

	require.NoError(t, task.WriteWord(textBase, 1))

	region, err := task.QueryProtection(textBase)
	require.NoError(t, err)
	assert.Equal(t, VMProtAll, region.Protection)
}

func TestWriteWordAlreadyWritable(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	require.NoError(t, task.WriteWord(dataBase, 7))
	assert.Empty(t, k.protectCalls, "rwx pages need no protection change")
}

func TestSetProtectionAllThenQuery(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, task.SetProtection(dataBase, VMProtAll))
		region, err := task.QueryProtection(dataBase)
		require.NoError(t, err)
		assert.Equal(t, VMProtAll, region.Protection)
		assert.Equal(t, uint64(dataBase), region.Base)
	}
}

func TestSetProtectionExceedsMaximum(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	err := task.SetProtection(roBase, VMProtRead|VMProtWrite)
	assert.ErrorIs(t, err, ErrProtectionFailure)

	var kerr KernError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindProtectionFailure, kerr.Kind())
}

func TestQueryProtectionGap(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	_, err := task.QueryProtection(0x30000)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEnsureWritable(t *testing.T) {
	k := newMemoryKernel()
	task := newTestTask(t, k, nil)

	previous, changed, err := task.EnsureWritable(roBase)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, VMProtRead, previous)

	previous, changed, err = task.EnsureWritable(roBase)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, VMProtAll, previous)
}

func TestEnsureWritableBounded(t *testing.T) {
	k := newMemoryKernel()
	k.regions[1].stuck = true
	cfg := DefaultConfig()
	cfg.MaxProtectAttempts = 3
	task := newTestTask(t, k, cfg)

	err := task.WriteWord(textBase, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtectionEscalation)

	var perr *ProtectionEscalationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, uint64(textBase), perr.Addr)
	assert.Equal(t, VMProtRead|VMProtExecute, perr.Last)
	assert.Zero(t, k.writes)
	// Three copy/all pairs, then the restore.
	assert.Len(t, k.protectCalls, 7)
}

func TestVMProtString(t *testing.T) {
	assert.Equal(t, "rwx", VMProtAll.String())
	assert.Equal(t, "r-x", (VMProtRead | VMProtExecute).String())
	assert.Equal(t, "---", VMProtNone.String())
	assert.Equal(t, "---c", VMProtCopy.String())
}

func TestTruncPage(t *testing.T) {
	ps := uint64(PageSize())
	require.NotZero(t, ps)
	assert.Equal(t, ps, TruncPage(ps+1))
	assert.Equal(t, uint64(0), TruncPage(ps-1))
}
