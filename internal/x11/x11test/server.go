// Package x11test provides an in-memory X server for exercising selection
// transfers without a display. Several clients share properties, selection
// ownership and ordered property notifications the way a real server does,
// and the server records every property write and selection notify so tests
// can count them.
package x11test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.klb.dev/xselect/internal/x11"
)

// ErrBadWindow is returned for requests naming an unknown window.
var ErrBadWindow = errors.New("x11test: BadWindow")

// ErrBadValue is returned for malformed property writes.
var ErrBadValue = errors.New("x11test: BadValue")

const firstDynamicAtom x11.Atom = 69

// Write records one ChangeProperty request.
type Write struct {
	Issuer   x11.Window
	Window   x11.Window
	Property x11.Atom
	Type     x11.Atom
	Format   uint8
	Len      int
}

type propKey struct {
	w    x11.Window
	prop x11.Atom
}

type property struct {
	typ    x11.Atom
	format uint8
	data   []byte
}

// Server is the shared state behind a set of Clients.
type Server struct {
	mu         sync.Mutex
	nextWindow x11.Window
	nextAtom   x11.Atom
	root       x11.Window
	atoms      map[string]x11.Atom
	failIntern map[string]error
	props      map[propKey]*property
	owners     map[x11.Atom]*Client
	windows    map[x11.Window]*Client
	watchers   map[x11.Window][]*Client
	writes     []Write
	notifies   []x11.SelectionNotify
}

// NewServer returns an empty server with the predefined atoms interned.
func NewServer() *Server {
	return &Server{
		nextWindow: 0x200000,
		nextAtom:   firstDynamicAtom,
		root:       0x100,
		atoms: map[string]x11.Atom{
			"PRIMARY":     x11.AtomPrimary,
			"SECONDARY":   x11.AtomSecondary,
			"ATOM":        x11.AtomAtom,
			"CUT_BUFFER0": x11.AtomCutBuffer0,
			"STRING":      x11.AtomString,
		},
		failIntern: make(map[string]error),
		props:      make(map[propKey]*property),
		owners:     make(map[x11.Atom]*Client),
		windows:    make(map[x11.Window]*Client),
		watchers:   make(map[x11.Window][]*Client),
	}
}

// NewClient connects a client and creates its window with property change
// events selected, mirroring x11.Dial.
func (s *Server) NewClient() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWindow += 0x100000
	c := &Client{
		srv:   s,
		win:   s.nextWindow,
		ready: make(chan struct{}, 1),
	}
	s.windows[c.win] = c
	s.watchers[c.win] = []*Client{c}
	return c
}

// Root returns the root window shared by all clients.
func (s *Server) Root() x11.Window { return s.root }

// FailIntern makes InternAtom(name) fail with err.
func (s *Server) FailIntern(name string, err error) {
	s.mu.Lock()
	s.failIntern[name] = err
	s.mu.Unlock()
}

// Writes returns every ChangeProperty request processed so far.
func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// WritesBy returns the ChangeProperty requests issued by the given client.
func (s *Server) WritesBy(c *Client) []Write {
	var out []Write
	for _, w := range s.Writes() {
		if w.Issuer == c.win {
			out = append(out, w)
		}
	}
	return out
}

// Notifies returns every SelectionNotify sent through SendSelectionNotify.
func (s *Server) Notifies() []x11.SelectionNotify {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]x11.SelectionNotify(nil), s.notifies...)
}

// Property returns a copy of a stored property.
func (s *Server) Property(w x11.Window, prop x11.Atom) (x11.Property, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[propKey{w, prop}]
	if !ok {
		return x11.Property{}, false
	}
	return x11.Property{Type: p.typ, Format: p.format, Value: append([]byte(nil), p.data...)}, true
}

// SetProperty stores a property directly, bypassing any client, and
// notifies watchers.
func (s *Server) SetProperty(w x11.Window, prop, typ x11.Atom, format uint8, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(w, prop, typ, format, data)
}

// Owner returns the window currently owning selection, or zero.
func (s *Server) Owner(selection x11.Atom) x11.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.owners[selection]; c != nil {
		return c.win
	}
	return 0
}

func (s *Server) knownWindowLocked(w x11.Window) bool {
	return w == s.root || s.windows[w] != nil
}

func (s *Server) storeLocked(w x11.Window, prop, typ x11.Atom, format uint8, data []byte) {
	s.props[propKey{w, prop}] = &property{typ: typ, format: format, data: append([]byte(nil), data...)}
	s.notifyLocked(w, prop, x11.PropertyNewValue)
}

func (s *Server) notifyLocked(w x11.Window, prop x11.Atom, state x11.PropertyState) {
	ev := x11.PropertyNotify{Window: w, Atom: prop, State: state}
	for _, c := range s.watchers[w] {
		c.push(ev)
	}
}

// Client is one connection to a Server. It implements x11.Conn.
type Client struct {
	srv *Server
	win x11.Window

	mu       sync.Mutex
	queue    []x11.Event
	ready    chan struct{}
	closed   bool
	writeErr error
	flushes  int
}

var _ x11.Conn = (*Client)(nil)

func (c *Client) push(ev x11.Event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Inject queues ev as if the server had delivered it.
func (c *Client) Inject(ev x11.Event) { c.push(ev) }

// FailWrites makes every later ChangeProperty from this client fail with err.
func (c *Client) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// Flushes reports how many times Flush was called.
func (c *Client) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Pending reports how many events are queued.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) Window() x11.Window { return c.win }
func (c *Client) Root() x11.Window   { return c.srv.root }

func (c *Client) WaitForEvent(ctx context.Context) (x11.Event, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return ev, nil
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, x11.ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ready:
		}
	}
}

func (c *Client) Flush() error {
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
	return nil
}

func (c *Client) InternAtom(name string) (x11.Atom, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failIntern[name]; err != nil {
		return x11.AtomNone, err
	}
	if a, ok := s.atoms[name]; ok {
		return a, nil
	}
	a := s.nextAtom
	s.nextAtom++
	s.atoms[name] = a
	return a, nil
}

func (c *Client) ChangeProperty(w x11.Window, prop, typ x11.Atom, format uint8, data []byte) error {
	c.mu.Lock()
	werr := c.writeErr
	c.mu.Unlock()
	if werr != nil {
		return werr
	}
	if format != 8 && format != 16 && format != 32 {
		return fmt.Errorf("%w: format %d", ErrBadValue, format)
	}
	if len(data)%int(format/8) != 0 {
		return fmt.Errorf("%w: %d bytes at format %d", ErrBadValue, len(data), format)
	}

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownWindowLocked(w) {
		return fmt.Errorf("%w: %#x", ErrBadWindow, w)
	}
	s.writes = append(s.writes, Write{
		Issuer: c.win, Window: w, Property: prop, Type: typ, Format: format, Len: len(data),
	})
	s.storeLocked(w, prop, typ, format, data)
	return nil
}

func (c *Client) GetProperty(w x11.Window, prop, typ x11.Atom, longLength uint32) (*x11.Property, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownWindowLocked(w) {
		return nil, fmt.Errorf("%w: %#x", ErrBadWindow, w)
	}
	p, ok := s.props[propKey{w, prop}]
	if !ok {
		return &x11.Property{Type: x11.AtomNone}, nil
	}
	if typ != x11.AtomAny && typ != p.typ {
		return &x11.Property{Type: p.typ, Format: p.format, BytesAfter: uint32(len(p.data))}, nil
	}
	n := min(len(p.data), int(longLength)*4)
	return &x11.Property{
		Type:       p.typ,
		Format:     p.format,
		Value:      append([]byte(nil), p.data[:n]...),
		BytesAfter: uint32(len(p.data) - n),
	}, nil
}

func (c *Client) DeleteProperty(w x11.Window, prop x11.Atom) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownWindowLocked(w) {
		return fmt.Errorf("%w: %#x", ErrBadWindow, w)
	}
	key := propKey{w, prop}
	if _, ok := s.props[key]; !ok {
		return nil
	}
	delete(s.props, key)
	s.notifyLocked(w, prop, x11.PropertyDeleted)
	return nil
}

func (c *Client) SetSelectionOwner(w x11.Window, selection x11.Atom) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.owners[selection]
	s.owners[selection] = c
	if prev != nil && prev != c {
		prev.push(x11.SelectionClear{Owner: prev.win, Selection: selection})
	}
	return nil
}

func (c *Client) ConvertSelection(requestor x11.Window, selection, target, prop x11.Atom) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owners[selection]
	if owner == nil {
		c.push(x11.SelectionNotify{
			Requestor: requestor, Selection: selection, Target: target, Property: x11.AtomNone,
		})
		return nil
	}
	owner.push(x11.SelectionRequest{
		Owner:     owner.win,
		Requestor: requestor,
		Selection: selection,
		Target:    target,
		Property:  prop,
	})
	return nil
}

func (c *Client) SendSelectionNotify(ev x11.SelectionNotify) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	dest := s.windows[ev.Requestor]
	if dest == nil {
		return fmt.Errorf("%w: %#x", ErrBadWindow, ev.Requestor)
	}
	s.notifies = append(s.notifies, ev)
	dest.push(ev)
	return nil
}

func (c *Client) SelectPropertyChanges(w x11.Window) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.knownWindowLocked(w) {
		return fmt.Errorf("%w: %#x", ErrBadWindow, w)
	}
	for _, existing := range s.watchers[w] {
		if existing == c {
			return nil
		}
	}
	s.watchers[w] = append(s.watchers[w], c)
	return nil
}

// Close releases the client's selections. Queued events can still be read;
// after that WaitForEvent reports x11.ErrClosed.
func (c *Client) Close() error {
	s := c.srv
	s.mu.Lock()
	for sel, owner := range s.owners {
		if owner == c {
			delete(s.owners, sel)
		}
	}
	s.mu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	select {
	case c.ready <- struct{}{}:
	default:
	}
	return nil
}
