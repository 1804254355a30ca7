package selection

import (
	"fmt"
	"strings"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/x11"
)

// Selection names the slot a command operates on.
type Selection int

const (
	Primary Selection = iota
	Secondary
	Clipboard
	// CutBuffer is the pre-ICCCM cut buffer. It has no owner and is read
	// and written directly on the root window.
	CutBuffer
)

func (s Selection) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Clipboard:
		return "clipboard"
	case CutBuffer:
		return "buffer-cut"
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// Parse matches s case-insensitively by its first letter, so "p", "Prim"
// and "primary" all name Primary.
func Parse(s string) (Selection, error) {
	if s == "" {
		return Primary, fmt.Errorf("empty selection name")
	}
	switch strings.ToLower(s[:1]) {
	case "p":
		return Primary, nil
	case "s":
		return Secondary, nil
	case "c":
		return Clipboard, nil
	case "b":
		return CutBuffer, nil
	}
	return Primary, fmt.Errorf("unknown selection %q (want primary, secondary, clipboard or buffer-cut)", s)
}

// Atom returns the selection atom. CutBuffer has none.
func (s Selection) Atom(atoms *atom.Table) (x11.Atom, bool) {
	switch s {
	case Primary:
		return x11.AtomPrimary, true
	case Secondary:
		return x11.AtomSecondary, true
	case Clipboard:
		return atoms.Clipboard, true
	}
	return x11.AtomNone, false
}
