// Package atom interns the protocol atoms a selection session needs.
//
// A Resolver caches every name it has interned, so resolving the same name
// twice costs one round trip. The Table built at session start is passed by
// reference into both transfer machines.
package atom

import (
	"errors"
	"fmt"
	"sync"

	"go.klb.dev/xselect/internal/x11"
)

// Well-known atom names.
const (
	Incr      = "INCR"
	Targets   = "TARGETS"
	Clipboard = "CLIPBOARD"

	// ReplyProperty is the property on our own window that owners write
	// converted selections into.
	ReplyProperty = "XSELECT_OUT"
)

// ErrResolution reports that the server could not intern a name. Nothing in
// the selection protocol works without these atoms.
var ErrResolution = errors.New("atom resolution failed")

// predefined atoms never cost a round trip.
var predefined = map[string]x11.Atom{
	"PRIMARY":     x11.AtomPrimary,
	"SECONDARY":   x11.AtomSecondary,
	"ATOM":        x11.AtomAtom,
	"CUT_BUFFER0": x11.AtomCutBuffer0,
	"STRING":      x11.AtomString,
}

// Interner is the part of x11.Conn the resolver needs.
type Interner interface {
	InternAtom(name string) (x11.Atom, error)
}

// Resolver interns names on first use and caches the result.
type Resolver struct {
	in Interner

	mu    sync.Mutex
	cache map[string]x11.Atom
}

// NewResolver returns a resolver with an empty cache.
func NewResolver(in Interner) *Resolver {
	return &Resolver{in: in, cache: make(map[string]x11.Atom)}
}

// Resolve interns every name not already cached and returns a name→atom map
// for the requested names. On failure nothing new is cached.
func (r *Resolver) Resolve(names ...string) (map[string]x11.Atom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]x11.Atom, len(names))
	fresh := make(map[string]x11.Atom)
	for _, name := range names {
		if a, ok := predefined[name]; ok {
			out[name] = a
			continue
		}
		if a, ok := r.cache[name]; ok {
			out[name] = a
			continue
		}
		if a, ok := fresh[name]; ok {
			out[name] = a
			continue
		}
		a, err := r.in.InternAtom(name)
		if err != nil {
			return nil, fmt.Errorf("%w: intern %q: %w", ErrResolution, name, err)
		}
		if a == x11.AtomNone {
			return nil, fmt.Errorf("%w: intern %q: server returned None", ErrResolution, name)
		}
		fresh[name] = a
		out[name] = a
	}
	for name, a := range fresh {
		r.cache[name] = a
	}
	return out, nil
}

// Table holds the atoms every transfer uses.
type Table struct {
	Incr      x11.Atom
	Targets   x11.Atom
	Clipboard x11.Atom
	Reply     x11.Atom
}

// Table resolves the well-known atoms.
func (r *Resolver) Table() (*Table, error) {
	m, err := r.Resolve(Incr, Targets, Clipboard, ReplyProperty)
	if err != nil {
		return nil, err
	}
	return &Table{
		Incr:      m[Incr],
		Targets:   m[Targets],
		Clipboard: m[Clipboard],
		Reply:     m[ReplyProperty],
	}, nil
}
