package remotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/sources"
)

// ErrRemoteUnavailable is returned in place of the wrapped Remote's own
// error when its breaker is open.
var ErrRemoteUnavailable = fmt.Errorf("remote unavailable: circuit open")

// BreakerRemote wraps a Remote with a per-remote-name circuit breaker, so a
// dead remote trips open and stops consuming retry budget while the rest of
// the resolver's remotes keep serving fetches (spec.md §4.2's requirement
// that one dead remote not block others during dependency resolution).
// Grounded on git-pkgs-registries' CircuitBreakerFetcher (fetch/circuit_breaker.go):
// same threshold-trip-plus-exponential-backoff shape, generalized from one
// breaker-per-registry-host to one breaker-per-remote-name and from a
// single Fetch method to Fetch+PushMany.
type BreakerRemote struct {
	name   string
	inner  Remote
	mu     sync.Mutex
	fetchB *circuit.Breaker
	pushB  *circuit.Breaker
}

// NewBreakerRemote wraps inner with a breaker trip threshold of 5
// consecutive failures and exponential backoff between 30s and 5m, matching
// git-pkgs-registries' CircuitBreakerFetcher tuning.
func NewBreakerRemote(name string, inner Remote) *BreakerRemote {
	return &BreakerRemote{
		name:   name,
		inner:  inner,
		fetchB: newBreaker(),
		pushB:  newBreaker(),
	}
}

func newBreaker() *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(5),
	})
}

// Fetch implements Remote.
func (b *BreakerRemote) Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error) {
	if !b.fetchB.Ready() {
		return nil, fmt.Errorf("remote %q: %w", b.name, ErrRemoteUnavailable)
	}

	var out []*sources.ComponentObjects
	err := b.fetchB.Call(func() error {
		var callErr error
		out, callErr = b.inner.Fetch(ctx, ids, scope, onlyHead)
		return callErr
	}, 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PushMany implements Remote.
func (b *BreakerRemote) PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error) {
	if !b.pushB.Ready() {
		return nil, fmt.Errorf("remote %q: %w", b.name, ErrRemoteUnavailable)
	}

	var out []string
	err := b.pushB.Call(func() error {
		var callErr error
		out, callErr = b.inner.PushMany(ctx, bundles)
		return callErr
	}, 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tripped reports whether either breaker is currently open, for health
// reporting.
func (b *BreakerRemote) Tripped() bool {
	return b.fetchB.Tripped() || b.pushB.Tripped()
}
