package selection

import (
	"bytes"
	"fmt"
)

// TransferBuffer accumulates a payload across chunks. A zero limit means
// unbounded.
type TransferBuffer struct {
	buf   bytes.Buffer
	limit int
}

// NewTransferBuffer returns an empty buffer that refuses to grow past limit
// bytes.
func NewTransferBuffer(limit int) *TransferBuffer {
	return &TransferBuffer{limit: limit}
}

// Append copies p onto the end of the buffer.
func (b *TransferBuffer) Append(p []byte) error {
	if b.limit > 0 && b.buf.Len()+len(p) > b.limit {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrAllocation, b.buf.Len()+len(p), b.limit)
	}
	b.buf.Write(p)
	return nil
}

// Reset empties the buffer, keeping its limit.
func (b *TransferBuffer) Reset() { b.buf.Reset() }

// Len is the number of bytes accumulated so far.
func (b *TransferBuffer) Len() int { return b.buf.Len() }

// Bytes hands the accumulated payload to the caller. The buffer must not be
// used afterwards.
func (b *TransferBuffer) Bytes() []byte {
	out := b.buf.Bytes()
	if out == nil {
		out = []byte{}
	}
	b.buf = bytes.Buffer{}
	return out
}
