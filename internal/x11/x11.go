// Package x11 describes the slice of the X11 core protocol that selection
// transfers need: atoms, windows, properties, the four selection-related
// events, and the Conn interface the transfer machines drive.
//
// Dial returns a Conn backed by github.com/jezek/xgb. Tests use the in-memory
// server in x11test instead.
package x11

import (
	"context"
	"errors"
)

// Atom is a server-assigned identifier for a named protocol object.
type Atom uint32

// Window is a server-side window identifier.
type Window uint32

// Timestamp is a server time in milliseconds.
type Timestamp uint32

// CurrentTime asks the server to substitute its own clock. Ownership and
// conversion requests are stamped with it.
const CurrentTime Timestamp = 0

// Atoms predefined by the core protocol. They never need interning.
const (
	AtomNone       Atom = 0
	AtomAny        Atom = 0
	AtomPrimary    Atom = 1
	AtomSecondary  Atom = 2
	AtomAtom       Atom = 4
	AtomCutBuffer0 Atom = 9
	AtomString     Atom = 31
)

// Property format widths in bits.
const (
	Format8  uint8 = 8
	Format32 uint8 = 32
)

// PropertyState is the state field of a PropertyNotify event.
type PropertyState uint8

const (
	PropertyNewValue PropertyState = 0
	PropertyDeleted  PropertyState = 1
)

func (s PropertyState) String() string {
	if s == PropertyDeleted {
		return "deleted"
	}
	return "new-value"
}

// ErrClosed is returned by WaitForEvent once the connection is gone.
var ErrClosed = errors.New("x11: connection closed")

// Property is the result of a GetProperty round trip.
//
// Type is AtomNone when the property does not exist. When a specific type was
// requested and the property has a different one, Value is empty and
// BytesAfter carries the full length.
type Property struct {
	Type       Atom
	Format     uint8
	Value      []byte
	BytesAfter uint32
}

// PropertyIO reads, writes and deletes window properties. Writes always
// replace the previous value.
type PropertyIO interface {
	// ChangeProperty replaces the value of prop on w. len(data) must be a
	// multiple of format/8.
	ChangeProperty(w Window, prop, typ Atom, format uint8, data []byte) error

	// GetProperty reads up to longLength 32-bit units from offset zero
	// without deleting the property. typ may be AtomAny.
	GetProperty(w Window, prop, typ Atom, longLength uint32) (*Property, error)

	DeleteProperty(w Window, prop Atom) error
}

// SelectionOps are the selection requests of the core protocol.
type SelectionOps interface {
	SetSelectionOwner(w Window, selection Atom) error
	ConvertSelection(requestor Window, selection, target, prop Atom) error
	// SendSelectionNotify delivers ev to the client that created ev.Requestor.
	SendSelectionNotify(ev SelectionNotify) error
	// SelectPropertyChanges asks for PropertyNotify events on a window
	// owned by another client.
	SelectPropertyChanges(w Window) error
}

// Conn is a client connection that owns one invisible window used as the
// selection owner and as the requestor for conversions.
type Conn interface {
	PropertyIO
	SelectionOps

	// Window returns the client's own window. PropertyNotify events for it
	// are always delivered.
	Window() Window

	// Root returns the root window of the default screen.
	Root() Window

	InternAtom(name string) (Atom, error)

	// WaitForEvent blocks until the next event arrives or ctx is done.
	WaitForEvent(ctx context.Context) (Event, error)

	// Flush makes sure every request issued so far has reached the server.
	Flush() error

	Close() error
}
