package remotes

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"

	"github.com/stephensong/bit/internal/objectstore"
	"github.com/stephensong/bit/internal/objtypes"
	"github.com/stephensong/bit/internal/sources"
)

// bundle is the over-the-wire shape of a sources.ComponentObjects: the same
// fields, but with the Sources map keyed by its CIDv1 string
// (objectstore.Ref.CID) rather than bare hex — remotes address objects over
// HTTP by CID string, the on-disk store never does.
type bundle struct {
	Component *objtypes.Component          `json:"component"`
	Versions  map[string]*objtypes.Version `json:"versions"`
	Sources   map[string]*objtypes.Source  `json:"sources"`
}

func toWire(co *sources.ComponentObjects) (bundle, error) {
	b := bundle{
		Component: co.Component,
		Versions:  co.Versions,
		Sources:   make(map[string]*objtypes.Source, len(co.Sources)),
	}
	for ref, src := range co.Sources {
		c, err := ref.CID()
		if err != nil {
			return bundle{}, fmt.Errorf("remotes: cid-encode %s: %w", ref, err)
		}
		b.Sources[c.String()] = src
	}
	return b, nil
}

func fromWire(b bundle) (*sources.ComponentObjects, error) {
	co := &sources.ComponentObjects{
		Component: b.Component,
		Versions:  b.Versions,
		Sources:   make(map[objectstore.Ref]*objtypes.Source, len(b.Sources)),
	}
	for cidStr, src := range b.Sources {
		c, err := gocid.Decode(cidStr)
		if err != nil {
			return nil, fmt.Errorf("remotes: decode cid %q: %w", cidStr, err)
		}
		ref, err := objectstore.RefFromCID(c)
		if err != nil {
			return nil, fmt.Errorf("remotes: cid-decode %s: %w", cidStr, err)
		}
		co.Sources[ref] = src
	}
	return co, nil
}
