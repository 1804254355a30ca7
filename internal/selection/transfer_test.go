package selection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/x11"
	"go.klb.dev/xselect/internal/x11/x11test"
)

type session struct {
	srv       *x11test.Server
	owner     *x11test.Client
	requestor *x11test.Client
	atoms     *atom.Table
}

func newSession(t *testing.T) *session {
	t.Helper()
	srv := x11test.NewServer()
	s := &session{srv: srv, owner: srv.NewClient(), requestor: srv.NewClient()}
	atoms, err := atom.NewResolver(s.owner).Table()
	if err != nil {
		t.Fatalf("resolve atoms: %v", err)
	}
	s.atoms = atoms
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// serve runs an owner for one request in the background.
func (s *session) serve(ctx context.Context, t *testing.T, src []byte, maxRequests int) (*Owner, <-chan error) {
	t.Helper()
	o := NewOwner(s.owner, s.atoms, x11.AtomPrimary, src, Options{})
	if err := o.Own(); err != nil {
		t.Fatalf("own: %v", err)
	}
	errc := make(chan error, 1)
	go func() {
		_, err := o.ServeUntil(ctx, maxRequests)
		errc <- err
	}()
	return o, errc
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, ChunkSize - 1, ChunkSize, ChunkSize + 1, 1_000_000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			s := newSession(t)
			ctx := testContext(t)
			src := payload(n)
			o, errc := s.serve(ctx, t, src, 1)

			got, err := Fetch(ctx, s.requestor, s.atoms, x11.AtomPrimary, Options{})
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if err := <-errc; err != nil {
				t.Fatalf("serve: %v", err)
			}
			if !bytes.Equal(got, src) {
				t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), n)
			}
			if o.Served() != 1 || o.Active() != 0 {
				t.Fatalf("served=%d active=%d", o.Served(), o.Active())
			}
			if _, ok := s.srv.Property(s.requestor.Window(), s.atoms.Reply); ok {
				t.Fatalf("reply property left behind")
			}
		})
	}
}

func TestIncrThresholdAndChunkCount(t *testing.T) {
	for _, n := range []int{0, 1, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3 * ChunkSize, 1_000_000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			s := newSession(t)
			ctx := testContext(t)
			_, errc := s.serve(ctx, t, payload(n), 1)

			if _, err := Fetch(ctx, s.requestor, s.atoms, x11.AtomPrimary, Options{}); err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if err := <-errc; err != nil {
				t.Fatalf("serve: %v", err)
			}

			writes := s.srv.WritesBy(s.owner)
			notifies := s.srv.Notifies()
			if len(notifies) != 1 {
				t.Fatalf("expected one notify, got %d", len(notifies))
			}

			if n <= ChunkSize {
				if len(writes) != 1 {
					t.Fatalf("expected a single write, got %d", len(writes))
				}
				if writes[0].Type != x11.AtomString || writes[0].Len != n {
					t.Fatalf("unexpected write %+v", writes[0])
				}
				return
			}

			if w := writes[0]; w.Type != s.atoms.Incr || w.Format != 32 || w.Len != 0 {
				t.Fatalf("expected empty INCR announcement, got %+v", w)
			}
			data := writes[1 : len(writes)-1]
			if len(data) != ChunkCount(n) {
				t.Fatalf("expected %d data chunks, got %d", ChunkCount(n), len(data))
			}
			for i, w := range data {
				if w.Len == 0 || w.Len > ChunkSize || w.Format != 8 {
					t.Fatalf("chunk %d: unexpected write %+v", i, w)
				}
			}
			if last := writes[len(writes)-1]; last.Len != 0 || last.Format != 8 || last.Type != x11.AtomString {
				t.Fatalf("expected empty terminator, got %+v", last)
			}
		})
	}
}

func TestTargetsEnumeration(t *testing.T) {
	for _, n := range []int{0, 10, 1_000_000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			s := newSession(t)
			ctx := testContext(t)
			_, errc := s.serve(ctx, t, payload(n), 1)

			raw, err := FetchTarget(ctx, s.requestor, s.atoms, x11.AtomPrimary, s.atoms.Targets, Options{})
			if err != nil {
				t.Fatalf("fetch targets: %v", err)
			}
			if err := <-errc; err != nil {
				t.Fatalf("serve: %v", err)
			}
			got, err := DecodeAtoms(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != 2 || got[0] != s.atoms.Targets || got[1] != x11.AtomString {
				t.Fatalf("unexpected targets %v", got)
			}
			for _, w := range s.srv.WritesBy(s.owner) {
				if w.Type == s.atoms.Incr {
					t.Fatalf("TARGETS entered the INCR path")
				}
			}
		})
	}
}

func TestClearWhileIdleStopsServing(t *testing.T) {
	s := newSession(t)
	ctx := testContext(t)
	o, errc := s.serve(ctx, t, payload(100), 0)

	thief := s.srv.NewClient()
	if err := thief.SetSelectionOwner(thief.Window(), x11.AtomPrimary); err != nil {
		t.Fatalf("steal: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !o.Cleared() || o.Served() != 0 {
		t.Fatalf("cleared=%v served=%d", o.Cleared(), o.Served())
	}
	if w := s.srv.WritesBy(s.owner); len(w) != 0 {
		t.Fatalf("owner wrote after losing the selection: %+v", w)
	}
}

// fetchPending drives the requester side of a conversion that has already
// been sent.
func fetchPending(ctx context.Context, s *session) ([]byte, error) {
	rc := NewRequesterContext(s.requestor.Window(), x11.AtomPrimary, x11.AtomString, s.atoms.Reply, 0)
	rc.State = RequesterSentConvert{}
	for !rc.Terminal() {
		ev, err := s.requestor.WaitForEvent(ctx)
		if err != nil {
			return nil, err
		}
		var effects []Effect
		rc, effects, err = StepRequester(s.atoms, s.requestor, rc, ev)
		if err != nil {
			return nil, err
		}
		if err := Apply(s.requestor, effects); err != nil {
			return nil, err
		}
	}
	return rc.Buffer.Bytes(), nil
}

func TestClearDuringIncrDrainsTransfer(t *testing.T) {
	s := newSession(t)
	ctx := testContext(t)
	src := payload(5 * ChunkSize)

	o := NewOwner(s.owner, s.atoms, x11.AtomPrimary, src, Options{})
	if err := o.Own(); err != nil {
		t.Fatalf("own: %v", err)
	}
	if err := s.requestor.ConvertSelection(s.requestor.Window(), x11.AtomPrimary, x11.AtomString, s.atoms.Reply); err != nil {
		t.Fatalf("convert: %v", err)
	}
	ev, err := s.owner.WaitForEvent(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := o.Handle(ev); err != nil {
		t.Fatalf("handle request: %v", err)
	}
	if o.Active() != 1 {
		t.Fatalf("expected an INCR transfer in flight, active=%d", o.Active())
	}

	if err := o.Handle(x11.SelectionClear{Owner: s.owner.Window(), Selection: x11.AtomPrimary}); err != nil {
		t.Fatalf("handle clear: %v", err)
	}
	if !o.Cleared() || o.Active() != 1 {
		t.Fatalf("clear aborted the transfer: cleared=%v active=%d", o.Cleared(), o.Active())
	}

	// New requests are refused once ownership is gone.
	late := x11.SelectionRequest{Requestor: s.requestor.Window(), Selection: x11.AtomPrimary, Target: x11.AtomString, Property: s.atoms.Reply + 1}
	if err := o.Handle(late); err != nil {
		t.Fatalf("handle late request: %v", err)
	}
	notifies := s.srv.Notifies()
	if last := notifies[len(notifies)-1]; last.Property != x11.AtomNone {
		t.Fatalf("late request not refused: %+v", last)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := o.ServeUntil(ctx, 0)
		errc <- err
	}()

	got, err := fetchPending(ctx, s)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("drained payload mismatch: got %d bytes", len(got))
	}
	if o.Served() != 1 || o.Active() != 0 {
		t.Fatalf("served=%d active=%d", o.Served(), o.Active())
	}
}

func TestSpuriousNotifyMidTransfer(t *testing.T) {
	s := newSession(t)
	ctx := testContext(t)
	src := payload(3 * ChunkSize)

	o := NewOwner(s.owner, s.atoms, x11.AtomPrimary, src, Options{})
	if err := o.Own(); err != nil {
		t.Fatalf("own: %v", err)
	}
	if err := s.requestor.ConvertSelection(s.requestor.Window(), x11.AtomPrimary, x11.AtomString, s.atoms.Reply); err != nil {
		t.Fatalf("convert: %v", err)
	}
	ev, err := s.owner.WaitForEvent(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := o.Handle(ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	before := len(s.srv.Writes())

	spurious := x11.PropertyNotify{Window: s.requestor.Window(), Atom: s.atoms.Reply, State: x11.PropertyNewValue}
	if err := o.Handle(spurious); err != nil {
		t.Fatalf("handle spurious: %v", err)
	}
	if after := len(s.srv.Writes()); after != before {
		t.Fatalf("spurious notify caused %d writes", after-before)
	}
	if o.Active() != 1 {
		t.Fatalf("spurious notify ended the transfer")
	}
}

func TestFetchWithoutOwnerIsRefused(t *testing.T) {
	s := newSession(t)
	_, err := Fetch(testContext(t), s.requestor, s.atoms, x11.AtomSecondary, Options{})
	if !errors.Is(err, ErrConversionRefused) {
		t.Fatalf("expected ErrConversionRefused, got %v", err)
	}
}

func TestFetchRespectsMaxSize(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	_, errc := s.serve(ctx, t, payload(3*ChunkSize), 1)

	got, err := Fetch(ctx, s.requestor, s.atoms, x11.AtomPrimary, Options{MaxSize: ChunkSize})
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if got != nil {
		t.Fatalf("partial payload returned: %d bytes", len(got))
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected owner to stop on cancel, got %v", err)
	}
}

func TestOwnerWriteFailureSurfaces(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()
	_, errc := s.serve(ctx, t, payload(10), 1)
	s.owner.FailWrites(errors.New("BadAlloc"))

	_, err := Fetch(ctx, s.requestor, s.atoms, x11.AtomPrimary, Options{Timeout: 100 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected requester to time out, got %v", err)
	}
	// A failed transfer does not stop the owner; it reports the failure
	// once it is told to stop.
	cancel()
	err = <-errc
	if !errors.Is(err, ErrPeerWrite) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrPeerWrite joined with context.Canceled, got %v", err)
	}
}

func TestOwnerSurvivesFailedRequestor(t *testing.T) {
	s := newSession(t)
	ctx := testContext(t)
	src := payload(3 * ChunkSize)
	o := NewOwner(s.owner, s.atoms, x11.AtomPrimary, src, Options{})
	if err := o.Own(); err != nil {
		t.Fatalf("own: %v", err)
	}
	// A request from a window the server does not know: every write to it
	// fails with BadWindow.
	s.owner.Inject(x11.SelectionRequest{
		Owner:     s.owner.Window(),
		Requestor: 0xdead00,
		Selection: x11.AtomPrimary,
		Target:    x11.AtomString,
		Property:  s.atoms.Reply,
	})

	type result struct {
		served int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		served, err := o.ServeUntil(ctx, 2)
		done <- result{served, err}
	}()

	for i := 0; i < 2; i++ {
		got, err := Fetch(ctx, s.requestor, s.atoms, x11.AtomPrimary, Options{})
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if !bytes.Equal(got, src) {
			t.Fatalf("fetch %d: got %d bytes, want %d", i, len(got), len(src))
		}
	}

	r := <-done
	if r.served != 2 {
		t.Fatalf("served %d transfers, want 2", r.served)
	}
	if !errors.Is(r.err, ErrPeerWrite) || !errors.Is(r.err, x11test.ErrBadWindow) {
		t.Fatalf("expected the failed transfer to be reported, got %v", r.err)
	}
	if o.Active() != 0 {
		t.Fatalf("%d transfers left active", o.Active())
	}
}

func TestOwnerAbandonsStalledRequestor(t *testing.T) {
	s := newSession(t)
	ctx := testContext(t)
	o := NewOwner(s.owner, s.atoms, x11.AtomPrimary, payload(2*ChunkSize), Options{Timeout: 50 * time.Millisecond})
	if err := o.Own(); err != nil {
		t.Fatalf("own: %v", err)
	}
	// Ask for the selection but never delete the INCR announcement, then
	// take the selection away. The owner must give up on the stalled
	// transfer instead of draining it forever.
	if err := s.requestor.ConvertSelection(s.requestor.Window(), x11.AtomPrimary, x11.AtomString, s.atoms.Reply); err != nil {
		t.Fatalf("convert: %v", err)
	}
	thief := s.srv.NewClient()
	if err := thief.SetSelectionOwner(thief.Window(), x11.AtomPrimary); err != nil {
		t.Fatalf("steal: %v", err)
	}

	served, err := o.ServeUntil(ctx, 0)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if served != 0 || o.Active() != 0 {
		t.Fatalf("served=%d active=%d", served, o.Active())
	}
}
