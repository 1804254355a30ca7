package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/x11"
)

// Options tunes the transfer loops.
type Options struct {
	// Timeout bounds each wait for the peer's next event while a transfer
	// is in flight. Zero waits forever.
	Timeout time.Duration

	// MaxSize caps a fetched payload in bytes. Zero means unlimited.
	MaxSize int
}

// waitEvent blocks for the next event, reporting ErrTimeout when timeout
// expires before ctx does.
func waitEvent(ctx context.Context, conn x11.Conn, timeout time.Duration) (x11.Event, error) {
	if timeout <= 0 {
		return conn.WaitForEvent(ctx)
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ev, err := conn.WaitForEvent(wctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return ev, err
}

type ownerKey struct {
	requestor x11.Window
	property  x11.Atom
}

// Owner serves one selection from a fixed payload. Each requestor gets its
// own OwnerContext, so several INCR transfers can be in flight at once.
//
// Losing the selection stops the owner from accepting new requests; transfers
// already in flight are drained before ServeUntil returns.
type Owner struct {
	conn      x11.Conn
	atoms     *atom.Table
	selection x11.Atom
	src       []byte
	opts      Options

	active  map[ownerKey]OwnerContext
	cleared bool
	served  int
}

// NewOwner returns an owner for selection serving src. src is borrowed and
// must not change while the owner runs.
func NewOwner(conn x11.Conn, atoms *atom.Table, selection x11.Atom, src []byte, opts Options) *Owner {
	return &Owner{
		conn:      conn,
		atoms:     atoms,
		selection: selection,
		src:       src,
		opts:      opts,
		active:    make(map[ownerKey]OwnerContext),
	}
}

// Own makes the owner's window the selection owner.
func (o *Owner) Own() error {
	if err := o.conn.SetSelectionOwner(o.conn.Window(), o.selection); err != nil {
		return fmt.Errorf("%w: set selection owner: %w", ErrPeerWrite, err)
	}
	return nil
}

// Served is the number of transfers completed so far.
func (o *Owner) Served() int { return o.served }

// Active is the number of INCR transfers in flight.
func (o *Owner) Active() int { return len(o.active) }

// Cleared reports whether ownership has been lost.
func (o *Owner) Cleared() bool { return o.cleared }

// ServeUntil answers requests until maxRequests transfers have completed
// (zero means no limit), ownership is lost, or ctx is done. It returns the
// number of completed transfers.
//
// A transfer the server rejects is dropped and serving continues; those
// errors are joined into the returned error.
func (o *Owner) ServeUntil(ctx context.Context, maxRequests int) (int, error) {
	var failed []error
	for !o.finished(maxRequests) {
		var timeout time.Duration
		if len(o.active) > 0 {
			timeout = o.opts.Timeout
		}
		ev, err := waitEvent(ctx, o.conn, timeout)
		if errors.Is(err, ErrTimeout) {
			slog.Warn("abandoning stalled transfers", "active", len(o.active), "err", err)
			clear(o.active)
			continue
		}
		if err != nil {
			return o.served, errors.Join(append(failed, err)...)
		}
		if err := o.Handle(ev); err != nil {
			slog.Warn("transfer aborted", "active", len(o.active), "err", err)
			failed = append(failed, err)
		}
	}
	return o.served, errors.Join(failed...)
}

func (o *Owner) finished(maxRequests int) bool {
	if len(o.active) > 0 {
		return false
	}
	if o.cleared {
		return true
	}
	return maxRequests > 0 && o.served >= maxRequests
}

// Handle feeds one event to the owner. An error aborts only the transfer the
// event belongs to; the owner stays usable.
func (o *Owner) Handle(ev x11.Event) error {
	switch e := ev.(type) {
	case x11.SelectionRequest:
		if e.Selection != o.selection || o.cleared {
			slog.Debug("refusing selection request", "requestor", windowAttr(e.Requestor), "cleared", o.cleared)
			return Apply(o.conn, refuse(e))
		}
		oc, effects := StepOwner(o.atoms, NewOwnerContext(o.src), e)
		if err := Apply(o.conn, effects); err != nil {
			return err
		}
		o.track(oc)

	case x11.SelectionClear:
		if e.Selection != o.selection {
			return nil
		}
		o.cleared = true
		if len(o.active) > 0 {
			slog.Warn("selection ownership lost, draining transfers in flight", "active", len(o.active))
		} else {
			slog.Info("selection ownership lost")
		}

	case x11.PropertyNotify:
		key := ownerKey{requestor: e.Window, property: e.Atom}
		oc, ok := o.active[key]
		if !ok {
			return nil
		}
		next, effects := StepOwner(o.atoms, oc, e)
		if len(effects) == 0 {
			return nil
		}
		if err := Apply(o.conn, effects); err != nil {
			delete(o.active, key)
			return err
		}
		o.track(next)

	default:
		slog.Debug("ignoring event", "event", ev)
	}
	return nil
}

func (o *Owner) track(oc OwnerContext) {
	key := ownerKey{requestor: oc.Requestor, property: oc.Property}
	switch st := oc.State.(type) {
	case OwnerIncrSending:
		if st.Cursor == 0 {
			slog.Debug("starting incremental transfer", "requestor", windowAttr(oc.Requestor), "bytes", len(oc.Source))
		} else {
			slog.Debug("sent chunk", "requestor", windowAttr(oc.Requestor), "cursor", st.Cursor)
		}
		o.active[key] = oc
	case OwnerRepliedFull, OwnerDone:
		delete(o.active, key)
		o.served++
		if oc.Target == o.atoms.Targets {
			slog.Info("selection targets served", "requestor", windowAttr(oc.Requestor))
			return
		}
		logTransfer("selection served", oc.Source, "requestor", windowAttr(oc.Requestor))
	}
}

// Fetch converts selection to STRING and returns the owner's payload.
func Fetch(ctx context.Context, conn x11.Conn, atoms *atom.Table, selection x11.Atom, opts Options) ([]byte, error) {
	return FetchTarget(ctx, conn, atoms, selection, x11.AtomString, opts)
}

// FetchTarget converts selection to target into the reply property on
// conn's window and reassembles the answer, following INCR if the owner
// streams it. On error no partial payload is returned.
func FetchTarget(ctx context.Context, conn x11.Conn, atoms *atom.Table, selection, target x11.Atom, opts Options) ([]byte, error) {
	rc := NewRequesterContext(conn.Window(), selection, target, atoms.Reply, opts.MaxSize)
	rc, effects := StartRequester(rc)
	if err := Apply(conn, effects); err != nil {
		return nil, err
	}

	for !rc.Terminal() {
		ev, err := waitEvent(ctx, conn, opts.Timeout)
		if err != nil {
			return nil, err
		}
		prev := rc.State
		rc, effects, err = StepRequester(atoms, conn, rc, ev)
		if err != nil {
			return nil, err
		}
		if err := Apply(conn, effects); err != nil {
			return nil, err
		}
		if _, ok := rc.State.(RequesterIncr); ok {
			if _, was := prev.(RequesterSentConvert); was {
				slog.Debug("owner started incremental transfer", "selection", selection)
			} else if len(effects) > 0 {
				slog.Debug("received chunk", "total", rc.Buffer.Len())
			}
		}
	}

	data := rc.Buffer.Bytes()
	logTransfer("selection fetched", data, "selection", selection, "target", target)
	return data, nil
}
