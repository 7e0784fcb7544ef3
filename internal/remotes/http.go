package remotes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"github.com/stephensong/bit/internal/bitid"
	"github.com/stephensong/bit/internal/sources"
)

// HTTPRemote is the default wire transport for a remote scope: POST /fetch
// and POST /push against a single base URL, JSON-encoded bundles. Grounded
// on the teacher's KuboClient (internal/dagit/ipfs.go, now retired): a thin
// http.Client wrapper with one method per remote verb, trimmed right at
// timeout and status-check. The dialer is wrapped with rs/dnscache so a
// long-lived process doesn't re-resolve the remote's host on every call;
// the resolver's Refresh is never called, so a cached address is kept for
// the life of the HTTPRemote. Remote connections are owned by this layer
// alone (spec.md §5).
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote builds a transport for the remote at baseURL.
func NewHTTPRemote(baseURL string) *HTTPRemote {
	resolver := &dnscache.Resolver{}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var conn net.Conn
			for _, ip := range ips {
				conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, err
		},
	}

	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

type fetchRequest struct {
	IDs      []string `json:"ids"`
	Scope    string   `json:"scope"`
	OnlyHead bool     `json:"onlyHead"`
}

// Fetch implements Remote.
func (h *HTTPRemote) Fetch(ctx context.Context, ids []bitid.BitId, scope string, onlyHead bool) ([]*sources.ComponentObjects, error) {
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	payload, err := json.Marshal(fetchRequest{IDs: idStrings, Scope: scope, OnlyHead: onlyHead})
	if err != nil {
		return nil, fmt.Errorf("remotes: encode fetch request: %w", err)
	}

	resp, err := h.post(ctx, "/fetch", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var bundles []bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundles); err != nil {
		return nil, fmt.Errorf("remotes: decode fetch response: %w", err)
	}
	out := make([]*sources.ComponentObjects, len(bundles))
	for i, b := range bundles {
		co, err := fromWire(b)
		if err != nil {
			return nil, err
		}
		out[i] = co
	}
	return out, nil
}

// PushMany implements Remote.
func (h *HTTPRemote) PushMany(ctx context.Context, bundles []*sources.ComponentObjects) ([]string, error) {
	wire := make([]bundle, len(bundles))
	for i, b := range bundles {
		w, err := toWire(b)
		if err != nil {
			return nil, err
		}
		wire[i] = w
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("remotes: encode push request: %w", err)
	}

	resp, err := h.post(ctx, "/push", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("remotes: decode push response: %w", err)
	}
	return ids, nil
}

func (h *HTTPRemote) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("remotes: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remotes: %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("remotes: %s: status %d: %s", path, resp.StatusCode, body)
	}
	return resp, nil
}
