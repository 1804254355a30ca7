package selection

import (
	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/x11"
)

// OwnerState is the state of one requestor's transfer on the owning side:
// OwnerIdle, OwnerRepliedFull, OwnerIncrSending or OwnerDone.
type OwnerState interface {
	isOwnerState()
}

// OwnerIdle waits for a SelectionRequest.
type OwnerIdle struct{}

// OwnerRepliedFull answered in a single property write. Terminal.
type OwnerRepliedFull struct{}

// OwnerIncrSending streams the payload. Cursor is the offset of the next
// chunk; it only grows and never exceeds the payload length.
type OwnerIncrSending struct {
	Cursor int
}

// OwnerDone wrote the empty terminator of an INCR transfer. Terminal.
type OwnerDone struct{}

func (OwnerIdle) isOwnerState()        {}
func (OwnerRepliedFull) isOwnerState() {}
func (OwnerIncrSending) isOwnerState() {}
func (OwnerDone) isOwnerState()        {}

// OwnerContext is the transfer state for a single requestor. Source is
// borrowed from the owner and never modified.
type OwnerContext struct {
	Requestor x11.Window
	Property  x11.Atom
	Selection x11.Atom
	Target    x11.Atom
	Time      x11.Timestamp
	Source    []byte
	State     OwnerState
}

// NewOwnerContext returns an idle context serving src.
func NewOwnerContext(src []byte) OwnerContext {
	return OwnerContext{Source: src, State: OwnerIdle{}}
}

// Terminal reports whether the transfer has finished.
func (oc OwnerContext) Terminal() bool {
	switch oc.State.(type) {
	case OwnerRepliedFull, OwnerDone:
		return true
	}
	return false
}

// StepOwner feeds one event into oc and returns the next context together
// with the server mutations the transition requires. Events that do not
// concern the current state leave oc unchanged and produce no effects.
func StepOwner(atoms *atom.Table, oc OwnerContext, ev x11.Event) (OwnerContext, []Effect) {
	switch st := oc.State.(type) {
	case OwnerIdle:
		req, ok := ev.(x11.SelectionRequest)
		if !ok {
			return oc, nil
		}
		return beginReply(atoms, oc, req)

	case OwnerIncrSending:
		pn, ok := ev.(x11.PropertyNotify)
		if !ok || pn.State != x11.PropertyDeleted || pn.Window != oc.Requestor || pn.Atom != oc.Property {
			return oc, nil
		}
		chunk := nextChunk(oc.Source, st.Cursor)
		if len(chunk) == 0 {
			oc.State = OwnerDone{}
			return oc, []Effect{
				WriteProperty{Window: oc.Requestor, Property: oc.Property, Type: x11.AtomString, Format: x11.Format8},
				Flush{},
			}
		}
		oc.State = OwnerIncrSending{Cursor: st.Cursor + len(chunk)}
		return oc, []Effect{
			WriteProperty{Window: oc.Requestor, Property: oc.Property, Type: x11.AtomString, Format: x11.Format8, Data: chunk},
			Flush{},
		}
	}
	return oc, nil
}

func beginReply(atoms *atom.Table, oc OwnerContext, req x11.SelectionRequest) (OwnerContext, []Effect) {
	oc.Requestor = req.Requestor
	oc.Property = req.Property
	if oc.Property == x11.AtomNone {
		// Pre-ICCCM requestors leave the property empty and expect the
		// reply in the target atom.
		oc.Property = req.Target
	}
	oc.Selection = req.Selection
	oc.Target = req.Target
	oc.Time = req.Time

	notify := Notify{
		Time:      req.Time,
		Requestor: req.Requestor,
		Selection: req.Selection,
		Target:    req.Target,
		Property:  oc.Property,
	}

	switch {
	case req.Target == atoms.Targets:
		oc.State = OwnerRepliedFull{}
		return oc, []Effect{
			WriteProperty{
				Window:   oc.Requestor,
				Property: oc.Property,
				Type:     atoms.Targets,
				Format:   x11.Format8,
				Data:     EncodeAtoms(atoms.Targets, x11.AtomString),
			},
			notify,
			Flush{},
		}

	case len(oc.Source) <= ChunkSize:
		oc.State = OwnerRepliedFull{}
		return oc, []Effect{
			WriteProperty{Window: oc.Requestor, Property: oc.Property, Type: x11.AtomString, Format: x11.Format8, Data: oc.Source},
			notify,
			Flush{},
		}

	default:
		oc.State = OwnerIncrSending{Cursor: 0}
		return oc, []Effect{
			WatchRequestor{Window: oc.Requestor},
			WriteProperty{Window: oc.Requestor, Property: oc.Property, Type: atoms.Incr, Format: x11.Format32},
			notify,
			Flush{},
		}
	}
}

// refuse answers req with property None.
func refuse(req x11.SelectionRequest) []Effect {
	return []Effect{
		Notify{
			Time:      req.Time,
			Requestor: req.Requestor,
			Selection: req.Selection,
			Target:    req.Target,
			Property:  x11.AtomNone,
		},
		Flush{},
	}
}
