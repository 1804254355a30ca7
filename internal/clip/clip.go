// Package clip hosts a payload in, or fetches one from, an X selection or the
// cut buffer. New picks the implementation for the slot:
//
//	clip_selection.go: PRIMARY, SECONDARY and CLIPBOARD via the selection machines
//	clip_cutbuffer.go: CUT_BUFFER0 on the root window
package clip

import (
	"context"
	"fmt"
	"time"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/selection"
	"go.klb.dev/xselect/internal/x11"
)

// Backend is the interface both slot implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the slot's current contents. An empty slot reads as an
	// empty, non-nil slice.
	Read(ctx context.Context) ([]byte, error)

	// Write makes data the slot's contents. For a selection this blocks
	// while requests are served: until Options.Loops transfers completed,
	// ownership was lost, or ctx is done.
	Write(ctx context.Context, data []byte) error
}

// Options configures a Backend.
type Options struct {
	// Loops is how many requests Write serves before returning. Zero serves
	// until ownership is lost.
	Loops int

	// Timeout bounds each wait for the peer. Zero waits forever.
	Timeout time.Duration

	// MaxSize caps what Read accepts, in bytes. Zero means unlimited.
	MaxSize int
}

func (o Options) transfer() selection.Options {
	return selection.Options{Timeout: o.Timeout, MaxSize: o.MaxSize}
}

// New returns the backend for sel on conn.
func New(conn x11.Conn, atoms *atom.Table, sel selection.Selection, opts Options) (Backend, error) {
	if opts.Loops < 0 {
		return nil, fmt.Errorf("negative loop count %d", opts.Loops)
	}
	if sel == selection.CutBuffer {
		return &cutBufferBackend{conn: conn}, nil
	}
	a, ok := sel.Atom(atoms)
	if !ok {
		return nil, fmt.Errorf("no atom for selection %s", sel)
	}
	return &selectionBackend{
		conn:  conn,
		atoms: atoms,
		sel:   sel,
		atom:  a,
		opts:  opts,
	}, nil
}
