package x11

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// Client is a Conn backed by a real X server connection.
type Client struct {
	conn *xgb.Conn
	win  Window
	root Window

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to display (empty means $DISPLAY), creates a 1x1 unmapped
// window that listens for property changes and starts the event pump.
func Dial(display string) (*Client, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("open display %q: %w", display, err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(conn,
		screen.RootDepth, wid, screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create window: %w", err)
	}

	c := &Client{
		conn:   conn,
		win:    Window(wid),
		root:   Window(screen.Root),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go c.pump(conn.WaitForEvent)
	slog.Debug("connected to X server", "display", display, "window", fmt.Sprintf("%#x", c.win))
	return c, nil
}

// pump forwards events from next until the connection ends or Close is
// called.
func (c *Client) pump(next func() (xgb.Event, xgb.Error)) {
	defer close(c.events)
	for {
		ev, xerr := next()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			// Errors from unchecked requests land here; every request the
			// transfer machines issue is checked, so these are unrelated.
			slog.Debug("asynchronous X error", "err", xerr)
			continue
		}
		select {
		case c.events <- translate(ev):
		case <-c.done:
			return
		}
	}
}

func translate(ev xgb.Event) Event {
	switch e := ev.(type) {
	case xproto.SelectionRequestEvent:
		return SelectionRequest{
			Time:      Timestamp(e.Time),
			Owner:     Window(e.Owner),
			Requestor: Window(e.Requestor),
			Selection: Atom(e.Selection),
			Target:    Atom(e.Target),
			Property:  Atom(e.Property),
		}
	case xproto.SelectionNotifyEvent:
		return SelectionNotify{
			Time:      Timestamp(e.Time),
			Requestor: Window(e.Requestor),
			Selection: Atom(e.Selection),
			Target:    Atom(e.Target),
			Property:  Atom(e.Property),
		}
	case xproto.SelectionClearEvent:
		return SelectionClear{
			Time:      Timestamp(e.Time),
			Owner:     Window(e.Owner),
			Selection: Atom(e.Selection),
		}
	case xproto.PropertyNotifyEvent:
		return PropertyNotify{
			Window: Window(e.Window),
			Atom:   Atom(e.Atom),
			Time:   Timestamp(e.Time),
			State:  PropertyState(e.State),
		}
	}
	var code uint8
	if b := ev.Bytes(); len(b) > 0 {
		code = b[0] &^ 0x80
	}
	return Other{Code: code}
}

func (c *Client) Window() Window { return c.win }
func (c *Client) Root() Window   { return c.root }

func (c *Client) WaitForEvent(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-c.events:
		if !ok {
			return nil, ErrClosed
		}
		return ev, nil
	}
}

// Flush performs a round trip so that the server has processed every
// request sent before it.
func (c *Client) Flush() error {
	_, err := xproto.GetInputFocus(c.conn).Reply()
	return err
}

func (c *Client) InternAtom(name string) (Atom, error) {
	reply, err := xproto.InternAtom(c.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return AtomNone, err
	}
	if reply == nil {
		return AtomNone, fmt.Errorf("intern %q: empty reply", name)
	}
	return Atom(reply.Atom), nil
}

func (c *Client) ChangeProperty(w Window, prop, typ Atom, format uint8, data []byte) error {
	units := uint32(len(data))
	if format > 8 {
		units /= uint32(format / 8)
	}
	return xproto.ChangePropertyChecked(c.conn, xproto.PropModeReplace,
		xproto.Window(w), xproto.Atom(prop), xproto.Atom(typ), format, units, data).Check()
}

func (c *Client) GetProperty(w Window, prop, typ Atom, longLength uint32) (*Property, error) {
	reply, err := xproto.GetProperty(c.conn, false,
		xproto.Window(w), xproto.Atom(prop), xproto.Atom(typ), 0, longLength).Reply()
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}
	return &Property{
		Type:       Atom(reply.Type),
		Format:     reply.Format,
		Value:      reply.Value,
		BytesAfter: reply.BytesAfter,
	}, nil
}

func (c *Client) DeleteProperty(w Window, prop Atom) error {
	return xproto.DeletePropertyChecked(c.conn, xproto.Window(w), xproto.Atom(prop)).Check()
}

func (c *Client) SetSelectionOwner(w Window, selection Atom) error {
	return xproto.SetSelectionOwnerChecked(c.conn,
		xproto.Window(w), xproto.Atom(selection), xproto.Timestamp(CurrentTime)).Check()
}

func (c *Client) ConvertSelection(requestor Window, selection, target, prop Atom) error {
	return xproto.ConvertSelectionChecked(c.conn, xproto.Window(requestor),
		xproto.Atom(selection), xproto.Atom(target), xproto.Atom(prop), xproto.Timestamp(CurrentTime)).Check()
}

func (c *Client) SendSelectionNotify(ev SelectionNotify) error {
	raw := xproto.SelectionNotifyEvent{
		Time:      xproto.Timestamp(ev.Time),
		Requestor: xproto.Window(ev.Requestor),
		Selection: xproto.Atom(ev.Selection),
		Target:    xproto.Atom(ev.Target),
		Property:  xproto.Atom(ev.Property),
	}
	return xproto.SendEventChecked(c.conn, false, xproto.Window(ev.Requestor),
		xproto.EventMaskNoEvent, string(raw.Bytes())).Check()
}

func (c *Client) SelectPropertyChanges(w Window) error {
	return xproto.ChangeWindowAttributesChecked(c.conn, xproto.Window(w),
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
}

// Close destroys the window and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = xproto.DestroyWindowChecked(c.conn, xproto.Window(c.win)).Check()
		c.conn.Close()
	})
	return nil
}

var _ Conn = (*Client)(nil)
