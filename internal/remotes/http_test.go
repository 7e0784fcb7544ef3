package remotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/sources"
)

func TestHTTPRemoteFetchRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fetch" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req fetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.IDs) != 1 || req.IDs[0] != "remote1/ui/button@1.0.0" {
			t.Fatalf("unexpected request ids: %v", req.IDs)
		}

		resp := []bundle{{
			Component: &objtypes.Component{Scope: "remote1", Box: "ui", Name: "button", Versions: map[string]string{"1.0.0": "deadbeef"}},
			Versions:  map[string]*objtypes.Version{"1.0.0": {MainFile: "index.ts"}},
			Sources:   map[string]*objtypes.Source{},
		}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	remote := &HTTPRemote{baseURL: server.URL, client: server.Client()}
	got, err := remote.Fetch(context.Background(), []bitid.BitId{bitid.New("remote1", "ui", "button", "1.0.0")}, "remote1", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].Component.Name != "button" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestHTTPRemotePushManyRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/push" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req []bundle
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req) != 1 {
			t.Fatalf("expected 1 bundle, got %d", len(req))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]string{"remote1/ui/button@1.0.0"})
	}))
	defer server.Close()

	remote := &HTTPRemote{baseURL: server.URL, client: server.Client()}
	ids, err := remote.PushMany(context.Background(), []*sources.ComponentObjects{{
		Component: &objtypes.Component{Scope: "remote1", Box: "ui", Name: "button", Versions: map[string]string{"1.0.0": "deadbeef"}},
		Versions:  map[string]*objtypes.Version{},
		Sources:   map[objectstore.Ref]*objtypes.Source{},
	}})
	if err != nil {
		t.Fatalf("PushMany: %v", err)
	}
	if len(ids) != 1 || ids[0] != "remote1/ui/button@1.0.0" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
