package x11

import "fmt"

// Event is one of the event types below. Events the transfer machines do not
// understand arrive as Other.
type Event interface {
	isEvent()
}

// SelectionRequest is sent to the selection owner when a requestor calls
// ConvertSelection.
type SelectionRequest struct {
	Time      Timestamp
	Owner     Window
	Requestor Window
	Selection Atom
	Target    Atom
	Property  Atom
}

// SelectionNotify tells a requestor that its conversion has been answered.
// Property is AtomNone when the conversion was refused.
type SelectionNotify struct {
	Time      Timestamp
	Requestor Window
	Selection Atom
	Target    Atom
	Property  Atom
}

// SelectionClear tells the previous owner that it lost the selection.
type SelectionClear struct {
	Time      Timestamp
	Owner     Window
	Selection Atom
}

// PropertyNotify reports a change to a property on a watched window.
type PropertyNotify struct {
	Window Window
	Atom   Atom
	Time   Timestamp
	State  PropertyState
}

// Other is any event without a dedicated type.
type Other struct {
	Code uint8
}

func (SelectionRequest) isEvent() {}
func (SelectionNotify) isEvent()  {}
func (SelectionClear) isEvent()   {}
func (PropertyNotify) isEvent()   {}
func (Other) isEvent()            {}

func (e SelectionRequest) String() string {
	return fmt.Sprintf("SelectionRequest{requestor=%#x selection=%d target=%d property=%d}",
		e.Requestor, e.Selection, e.Target, e.Property)
}

func (e SelectionNotify) String() string {
	return fmt.Sprintf("SelectionNotify{requestor=%#x selection=%d target=%d property=%d}",
		e.Requestor, e.Selection, e.Target, e.Property)
}

func (e SelectionClear) String() string {
	return fmt.Sprintf("SelectionClear{owner=%#x selection=%d}", e.Owner, e.Selection)
}

func (e PropertyNotify) String() string {
	return fmt.Sprintf("PropertyNotify{window=%#x atom=%d state=%s}", e.Window, e.Atom, e.State)
}

func (e Other) String() string {
	return fmt.Sprintf("Event{code=%d}", e.Code)
}
