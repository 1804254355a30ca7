package selection

import (
	"fmt"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/x11"
)

// RequesterState is the state of a fetch: RequesterNone,
// RequesterSentConvert, RequesterIncr or RequesterDone.
type RequesterState interface {
	isRequesterState()
}

// RequesterNone has not asked for the selection yet.
type RequesterNone struct{}

// RequesterSentConvert waits for the owner's SelectionNotify.
type RequesterSentConvert struct{}

// RequesterIncr receives chunks of an INCR transfer.
type RequesterIncr struct{}

// RequesterDone holds the complete payload. Terminal.
type RequesterDone struct{}

func (RequesterNone) isRequesterState()        {}
func (RequesterSentConvert) isRequesterState() {}
func (RequesterIncr) isRequesterState()        {}
func (RequesterDone) isRequesterState()        {}

// PropertyReader is the read half of x11.PropertyIO. Reads have no side
// effects on the server, so transitions may issue them directly.
type PropertyReader interface {
	GetProperty(w x11.Window, prop, typ x11.Atom, longLength uint32) (*x11.Property, error)
}

// RequesterContext is the state of a single fetch. Window and Property name
// the reply property on our own window; Buffer is owned exclusively by the
// context until the fetch completes.
type RequesterContext struct {
	Window    x11.Window
	Property  x11.Atom
	Selection x11.Atom
	Target    x11.Atom
	Buffer    *TransferBuffer
	State     RequesterState
}

// NewRequesterContext prepares a fetch of selection as target into prop on
// w. limit caps the payload size (zero for no cap).
func NewRequesterContext(w x11.Window, selection, target, prop x11.Atom, limit int) RequesterContext {
	return RequesterContext{
		Window:    w,
		Property:  prop,
		Selection: selection,
		Target:    target,
		Buffer:    NewTransferBuffer(limit),
		State:     RequesterNone{},
	}
}

// Terminal reports whether the fetch has completed.
func (rc RequesterContext) Terminal() bool {
	_, ok := rc.State.(RequesterDone)
	return ok
}

// StartRequester issues the conversion request.
func StartRequester(rc RequesterContext) (RequesterContext, []Effect) {
	if _, ok := rc.State.(RequesterNone); !ok {
		return rc, nil
	}
	rc.State = RequesterSentConvert{}
	return rc, []Effect{
		ConvertSelection{Requestor: rc.Window, Selection: rc.Selection, Target: rc.Target, Property: rc.Property},
		Flush{},
	}
}

// StepRequester feeds one event into rc. Events that do not concern the
// current state leave rc unchanged. A non-nil error aborts the fetch.
func StepRequester(atoms *atom.Table, props PropertyReader, rc RequesterContext, ev x11.Event) (RequesterContext, []Effect, error) {
	switch rc.State.(type) {
	case RequesterSentConvert:
		sn, ok := ev.(x11.SelectionNotify)
		if !ok || sn.Requestor != rc.Window || sn.Selection != rc.Selection || sn.Target != rc.Target {
			return rc, nil, nil
		}
		if sn.Property == x11.AtomNone {
			return rc, nil, fmt.Errorf("%w: selection %d as target %d", ErrConversionRefused, rc.Selection, rc.Target)
		}
		return receiveReply(atoms, props, rc)

	case RequesterIncr:
		pn, ok := ev.(x11.PropertyNotify)
		if !ok || pn.State != x11.PropertyNewValue || pn.Window != rc.Window || pn.Atom != rc.Property {
			return rc, nil, nil
		}
		return receiveChunk(props, rc)
	}
	return rc, nil, nil
}

func receiveReply(atoms *atom.Table, props PropertyReader, rc RequesterContext) (RequesterContext, []Effect, error) {
	del := DeleteProperty{Window: rc.Window, Property: rc.Property}

	p, err := readProperty(props, rc, peekUnits)
	if err != nil {
		return rc, nil, err
	}
	if p.Type == atoms.Incr {
		rc.Buffer.Reset()
		rc.State = RequesterIncr{}
		return rc, []Effect{del, Flush{}}, nil
	}
	if p.Type == x11.AtomNone {
		return rc, nil, fmt.Errorf("%w: reply property %d is missing", ErrProtocolViolation, rc.Property)
	}
	if p.Format != x11.Format8 {
		return rc, nil, fmt.Errorf("%w: reply has format %d", ErrProtocolViolation, p.Format)
	}
	if p.BytesAfter > 0 {
		p, err = readProperty(props, rc, units(uint32(len(p.Value))+p.BytesAfter))
		if err != nil {
			return rc, nil, err
		}
	}
	if err := rc.Buffer.Append(p.Value); err != nil {
		return rc, nil, err
	}
	rc.State = RequesterDone{}
	return rc, []Effect{del}, nil
}

func receiveChunk(props PropertyReader, rc RequesterContext) (RequesterContext, []Effect, error) {
	del := DeleteProperty{Window: rc.Window, Property: rc.Property}

	// A zero-length read reports the format and the full size in BytesAfter.
	p, err := readProperty(props, rc, 0)
	if err != nil {
		return rc, nil, err
	}
	if p.Format != x11.Format8 {
		return rc, []Effect{del}, nil
	}
	if p.BytesAfter == 0 {
		rc.State = RequesterDone{}
		return rc, []Effect{del}, nil
	}
	p, err = readProperty(props, rc, units(p.BytesAfter))
	if err != nil {
		return rc, nil, err
	}
	if err := rc.Buffer.Append(p.Value); err != nil {
		return rc, nil, err
	}
	return rc, []Effect{del, Flush{}}, nil
}

func readProperty(props PropertyReader, rc RequesterContext, longLength uint32) (*x11.Property, error) {
	p, err := props.GetProperty(rc.Window, rc.Property, x11.AtomAny, longLength)
	if err != nil {
		return nil, fmt.Errorf("%w: read property %d: %w", ErrProtocolViolation, rc.Property, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no reply reading property %d", ErrProtocolViolation, rc.Property)
	}
	return p, nil
}
