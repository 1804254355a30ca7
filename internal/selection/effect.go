package selection

import (
	"fmt"

	"go.klb.dev/xselect/internal/x11"
)

// Effect is a server mutation produced by a transition. Transitions never
// touch the connection themselves; Apply performs their effects in order.
type Effect interface {
	isEffect()
}

// WriteProperty replaces a property's value.
type WriteProperty struct {
	Window   x11.Window
	Property x11.Atom
	Type     x11.Atom
	Format   uint8
	Data     []byte
}

// DeleteProperty removes a property.
type DeleteProperty struct {
	Window   x11.Window
	Property x11.Atom
}

// Notify sends a SelectionNotify to a requestor.
type Notify struct {
	Time      x11.Timestamp
	Requestor x11.Window
	Selection x11.Atom
	Target    x11.Atom
	Property  x11.Atom
}

// ConvertSelection asks the selection owner to convert into Property on
// Requestor.
type ConvertSelection struct {
	Requestor x11.Window
	Selection x11.Atom
	Target    x11.Atom
	Property  x11.Atom
}

// WatchRequestor subscribes to property changes on another client's window,
// so deletions of the reply property are delivered to us.
type WatchRequestor struct {
	Window x11.Window
}

// Flush pushes everything issued so far to the server.
type Flush struct{}

func (WriteProperty) isEffect()    {}
func (DeleteProperty) isEffect()   {}
func (Notify) isEffect()           {}
func (ConvertSelection) isEffect() {}
func (WatchRequestor) isEffect()   {}
func (Flush) isEffect()            {}

// Effector is the part of x11.Conn that effects need.
type Effector interface {
	x11.PropertyIO
	x11.SelectionOps
	Flush() error
}

// Apply executes effects against conn in order and stops at the first
// failure. Every failure wraps ErrPeerWrite.
func Apply(conn Effector, effects []Effect) error {
	for _, eff := range effects {
		var err error
		switch e := eff.(type) {
		case WriteProperty:
			err = conn.ChangeProperty(e.Window, e.Property, e.Type, e.Format, e.Data)
			if err != nil {
				return fmt.Errorf("%w: write %d bytes to property %d on %#x: %w",
					ErrPeerWrite, len(e.Data), e.Property, e.Window, err)
			}
		case DeleteProperty:
			err = conn.DeleteProperty(e.Window, e.Property)
			if err != nil {
				return fmt.Errorf("%w: delete property %d on %#x: %w", ErrPeerWrite, e.Property, e.Window, err)
			}
		case Notify:
			err = conn.SendSelectionNotify(x11.SelectionNotify{
				Time:      e.Time,
				Requestor: e.Requestor,
				Selection: e.Selection,
				Target:    e.Target,
				Property:  e.Property,
			})
			if err != nil {
				return fmt.Errorf("%w: notify %#x: %w", ErrPeerWrite, e.Requestor, err)
			}
		case ConvertSelection:
			err = conn.ConvertSelection(e.Requestor, e.Selection, e.Target, e.Property)
			if err != nil {
				return fmt.Errorf("%w: convert selection %d: %w", ErrPeerWrite, e.Selection, err)
			}
		case WatchRequestor:
			err = conn.SelectPropertyChanges(e.Window)
			if err != nil {
				return fmt.Errorf("%w: watch %#x: %w", ErrPeerWrite, e.Window, err)
			}
		case Flush:
			if err = conn.Flush(); err != nil {
				return fmt.Errorf("%w: flush: %w", ErrPeerWrite, err)
			}
		default:
			return fmt.Errorf("unknown effect %T", eff)
		}
	}
	return nil
}
