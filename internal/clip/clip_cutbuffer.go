package clip

import (
	"context"

	"go.klb.dev/xselect/internal/selection"
	"go.klb.dev/xselect/internal/x11"
)

// cutBufferBackend reads and writes CUT_BUFFER0. Nobody owns it, so neither
// direction waits for a peer and ctx is only checked up front.
type cutBufferBackend struct {
	conn x11.Conn
}

func (b *cutBufferBackend) Name() string { return "cut buffer" }

func (b *cutBufferBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return selection.LoadCutBuffer(b.conn)
}

func (b *cutBufferBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return selection.StoreCutBuffer(b.conn, data)
}
