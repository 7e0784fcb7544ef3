package remotes

import (
	"context"
	"testing"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/sources"
)

type fakeRemote struct {
	name string
}

func (f *fakeRemote) Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error) {
	return nil, nil
}

func (f *fakeRemote) PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error) {
	return nil, nil
}

func TestResolverLocalOverridesGlobal(t *testing.T) {
	global := map[string]Remote{"origin": &fakeRemote{name: "global-origin"}}
	local := map[string]Remote{"origin": &fakeRemote{name: "local-origin"}}

	r := NewResolver(global, local)
	got, err := r.Get("origin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(*fakeRemote).name != "local-origin" {
		t.Fatalf("expected the local override to win, got %v", got)
	}
}

func TestResolverUnknownNameFails(t *testing.T) {
	r := NewResolver(nil, nil)
	if _, err := r.Get("nowhere"); err == nil {
		t.Fatal("expected RemoteScopeNotFound for an unregistered name")
	}
}

func TestResolverNamesListsBoth(t *testing.T) {
	global := map[string]Remote{"origin": &fakeRemote{}}
	local := map[string]Remote{"staging": &fakeRemote{}}

	r := NewResolver(global, local)
	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
