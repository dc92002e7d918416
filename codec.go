package mach

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// natural_t is the element unit of thread_info and thread_state buffers.
const naturalSize = 4

// hostOrder is the byte order of the kernel's in-memory structures.
var hostOrder binary.ByteOrder = binary.NativeEndian

// wordCount is the *_COUNT value for a kernel structure: its size in natural_t.
func wordCount(v any) (int, error) {
	n, err := struc.Sizeof(v)
	if err != nil {
		return 0, errors.Wrap(err, "struc.Sizeof() failed")
	}
	if n%naturalSize != 0 {
		return 0, errors.Errorf("struct size %d is not a multiple of natural_t", n)
	}
	return n / naturalSize, nil
}

// decodeWords unpacks a natural_t buffer filled by the kernel into v.
func decodeWords(words []uint32, v any) error {
	buf := make([]byte, len(words)*naturalSize)
	for i, w := range words {
		hostOrder.PutUint32(buf[i*naturalSize:], w)
	}
	return errors.Wrap(struc.UnpackWithOrder(bytes.NewReader(buf), v, hostOrder), "struc.Unpack() failed")
}

// encodeWords packs v into a natural_t buffer for the kernel.
func encodeWords(v any) ([]uint32, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, v, hostOrder); err != nil {
		return nil, errors.Wrap(err, "struc.Pack() failed")
	}
	if buf.Len()%naturalSize != 0 {
		return nil, errors.Errorf("packed size %d is not a multiple of natural_t", buf.Len())
	}
	raw := buf.Bytes()
	words := make([]uint32, len(raw)/naturalSize)
	for i := range words {
		words[i] = hostOrder.Uint32(raw[i*naturalSize:])
	}
	return words, nil
}
