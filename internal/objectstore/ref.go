package objectstore

import (
	"encoding/hex"
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Ref is the content digest identifying a stored object: a fixed-width
// hex-encoded SHA-256 digest of the object's canonical (uncompressed) bytes.
//
// Internally the digest is computed through go-multihash (a SHA2-256
// multihash) to stay on the same hashing path the rest of the ecosystem
// uses, then unwrapped to the bare digest bytes so Ref
// itself carries no multicodec/multihash framing on disk — spec.md is
// explicit that Ref is "a fixed-width cryptographic digest (hex-encoded)",
// not a CID. The CIDv1 form is reconstructed at the remotes boundary (see
// CID/RefFromCID, used by wire.go) where bundles are addressed by CID
// string rather than bare hex.
type Ref string

// ComputeRef hashes canonical (uncompressed) bytes into a Ref.
func ComputeRef(canonical []byte) (Ref, error) {
	mh, err := multihash.Sum(canonical, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("objectstore: hash: %w", err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return "", fmt.Errorf("objectstore: decode multihash: %w", err)
	}
	return Ref(hex.EncodeToString(decoded.Digest)), nil
}

// CID reconstructs the CIDv1 (raw codec) form of r, used by the remotes
// wire format (wire.go) which keys its Sources map by CID string rather
// than bare hex.
func (r Ref) CID() (gocid.Cid, error) {
	digest, err := hex.DecodeString(string(r))
	if err != nil {
		return gocid.Undef, fmt.Errorf("objectstore: decode ref %q: %w", r, err)
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return gocid.Undef, fmt.Errorf("objectstore: encode multihash: %w", err)
	}
	return gocid.NewCidV1(gocid.Raw, mh), nil
}

// RefFromCID unwraps a CIDv1 (raw codec, SHA2-256) back into a Ref.
func RefFromCID(c gocid.Cid) (Ref, error) {
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return "", fmt.Errorf("objectstore: decode cid hash: %w", err)
	}
	return Ref(hex.EncodeToString(decoded.Digest)), nil
}

// String satisfies fmt.Stringer.
func (r Ref) String() string { return string(r) }

// IsZero reports whether r carries no digest.
func (r Ref) IsZero() bool { return r == "" }
