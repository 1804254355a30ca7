package selection

import (
	"encoding/binary"
	"fmt"

	"go.klb.dev/xselect/internal/x11"
)

// ChunkSize is the largest payload written into a property in one request.
// Anything longer goes through INCR.
const ChunkSize = 4096

// peekUnits is the length, in 32-bit units, of the first read of a reply.
const peekUnits = 128

// nextChunk returns src[cursor:cursor+ChunkSize], clipped to the end of src.
// It is empty once cursor reaches len(src).
func nextChunk(src []byte, cursor int) []byte {
	if cursor >= len(src) {
		return nil
	}
	return src[cursor:min(cursor+ChunkSize, len(src))]
}

// ChunkCount is the number of data-bearing writes an INCR transfer of n
// bytes needs, not counting the empty terminator.
func ChunkCount(n int) int {
	return (n + ChunkSize - 1) / ChunkSize
}

// units converts a byte count to the 32-bit units GetProperty takes.
func units(n uint32) uint32 {
	return (n + 3) / 4
}

// EncodeAtoms packs atoms as little-endian 32-bit values, the layout of a
// TARGETS reply.
func EncodeAtoms(atoms ...x11.Atom) []byte {
	out := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(a))
	}
	return out
}

// DecodeAtoms reverses EncodeAtoms.
func DecodeAtoms(b []byte) ([]x11.Atom, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: atom list of %d bytes", ErrProtocolViolation, len(b))
	}
	out := make([]x11.Atom, len(b)/4)
	for i := range out {
		out[i] = x11.Atom(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
