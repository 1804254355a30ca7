package clip

import (
	"context"
	"log/slog"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/selection"
	"go.klb.dev/xselect/internal/x11"
)

type selectionBackend struct {
	conn  x11.Conn
	atoms *atom.Table
	sel   selection.Selection
	atom  x11.Atom
	opts  Options
}

func (b *selectionBackend) Name() string { return b.sel.String() + " selection" }

func (b *selectionBackend) Read(ctx context.Context) ([]byte, error) {
	return selection.Fetch(ctx, b.conn, b.atoms, b.atom, b.opts.transfer())
}

func (b *selectionBackend) Write(ctx context.Context, data []byte) error {
	o := selection.NewOwner(b.conn, b.atoms, b.atom, data, b.opts.transfer())
	if err := o.Own(); err != nil {
		return err
	}
	if b.opts.Loops > 0 {
		slog.Info("waiting for selection requests", "selection", b.sel.String(), "count", b.opts.Loops)
	} else {
		slog.Info("waiting for selection requests until ownership is lost", "selection", b.sel.String())
	}
	served, err := o.ServeUntil(ctx, b.opts.Loops)
	slog.Debug("stopped serving selection", "selection", b.sel.String(), "served", served, "cleared", o.Cleared())
	return err
}
