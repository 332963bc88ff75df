package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrNotDigest is returned when a CID does not wrap a 32-byte sha2-256 digest.
var ErrNotDigest = errors.New("cidutil: cid does not carry a sha2-256 digest")

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// DigestCID wraps an already computed 32-byte digest into a CIDv1 (raw + sha2-256).
//
// Identifiers in this module are tagged sha256 commitments, so the multihash
// code is sha2-256 even though the digest is not a plain hash of a single blob.
func DigestCID(digest [32]byte) cid.Cid {
	mh, err := multihash.Encode(digest[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, mh)
}

// DigestString returns the textual CID form of a 32-byte digest.
func DigestString(digest [32]byte) string {
	c := DigestCID(digest)
	if !c.Defined() {
		return ""
	}
	return c.String()
}

// ParseDigest decodes a CID string produced by DigestString.
func ParseDigest(s string) ([32]byte, error) {
	var out [32]byte
	c, err := cid.Decode(s)
	if err != nil {
		return out, err
	}
	return DigestFromCID(c)
}

// DigestFromCID extracts the 32-byte sha2-256 digest carried by c.
func DigestFromCID(c cid.Cid) ([32]byte, error) {
	var out [32]byte
	if !c.Defined() {
		return out, ErrNotDigest
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return out, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != len(out) {
		return out, ErrNotDigest
	}
	copy(out[:], dec.Digest)
	return out, nil
}
