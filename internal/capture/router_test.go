package capture

import (
	"context"
	"errors"
	"testing"
)

type stubBackend struct {
	name      string
	available bool
	err       error
	calls     int
}

func (b *stubBackend) Name() string    { return b.name }
func (b *stubBackend) Available() bool { return b.available }

func (b *stubBackend) Acquire(ctx context.Context, req Request) (Stream, error) {
	b.calls++
	return nil, b.err
}

func TestRouterPicksFirstAvailable(t *testing.T) {
	portal := &stubBackend{name: "portal"}
	x11 := &stubBackend{name: "x11", available: true}
	r := NewRouter(portal, x11)

	if !r.Available() {
		t.Fatal("router should be available")
	}
	if _, err := r.Acquire(context.Background(), Request{}); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if portal.calls != 0 || x11.calls != 1 {
		t.Fatalf("calls portal=%d x11=%d", portal.calls, x11.calls)
	}
}

func TestRouterWrapsErrors(t *testing.T) {
	r := NewRouter(&stubBackend{name: "x11", available: true, err: errors.New("bad display")})
	_, err := r.Acquire(context.Background(), Request{})
	if !errors.Is(err, ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
}

func TestRouterNothingAvailable(t *testing.T) {
	r := NewRouter(&stubBackend{name: "x11"})
	if r.Available() {
		t.Fatal("router should not be available")
	}
	if _, err := r.Acquire(context.Background(), Request{}); !errors.Is(err, ErrAcquire) {
		t.Fatalf("got %v, want ErrAcquire", err)
	}
	if len(r.Backends()) != 1 {
		t.Fatal("Backends should list configured backends")
	}
}
