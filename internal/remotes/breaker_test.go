package remotes

import (
	"context"
	"errors"
	"testing"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/sources"
)

type failingRemote struct {
	calls int
	err   error
}

func (f *failingRemote) Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error) {
	f.calls++
	return nil, f.err
}

func (f *failingRemote) PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error) {
	f.calls++
	return nil, f.err
}

func TestBreakerRemoteTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &failingRemote{err: errors.New("boom")}
	b := NewBreakerRemote("origin", inner)

	for i := 0; i < 5; i++ {
		if _, err := b.Fetch(context.Background(), nil, "origin", false); err == nil {
			t.Fatalf("call %d: expected the underlying failure to propagate", i)
		}
	}

	if !b.Tripped() {
		t.Fatal("expected the breaker to be open after 5 consecutive failures")
	}

	_, err := b.Fetch(context.Background(), nil, "origin", false)
	if !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable once tripped, got %v", err)
	}
	if inner.calls != 5 {
		t.Fatalf("expected the open breaker to short-circuit the 6th call, inner was called %d times", inner.calls)
	}
}

func TestBreakerRemotePassesThroughSuccess(t *testing.T) {
	inner := &failingRemote{err: nil}
	b := NewBreakerRemote("origin", inner)

	if _, err := b.PushMany(context.Background(), nil); err != nil {
		t.Fatalf("PushMany: %v", err)
	}
	if b.Tripped() {
		t.Fatal("breaker should not trip on success")
	}
}
