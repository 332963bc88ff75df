package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"xdao.co/consign/ops"
)

var (
	ErrUnsupportedAlg  = errors.New("keys: unsupported signature algorithm")
	ErrUnsupportedHash = errors.New("keys: unsupported hash algorithm")
	ErrInvalidKey      = errors.New("keys: invalid signer key")
	ErrBadSignature    = errors.New("keys: signature invalid")
	ErrNoSignatures    = errors.New("keys: no signatures")
	ErrUntrusted       = errors.New("keys: no trusted signer")
)

// Verify checks one content signature over id.
func Verify(id ops.ContentID, sig ops.ContentSig) error {
	digest, err := digestFor(sig.HashAlg, id[:])
	if err != nil {
		return err
	}
	switch sig.Alg {
	case AlgEd25519:
		if len(sig.Signer) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: ed25519 public key length %d", ErrInvalidKey, len(sig.Signer))
		}
		if len(sig.Sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(sig.Signer), digest, sig.Sig) {
			return ErrBadSignature
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(sig.Signer); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if len(sig.Sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig.Sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, sig.Alg)
	}
}

// Verifier checks the signature sets of a consignment. Every signature in a
// set must verify. When Trusted is non-empty, at least one signer of each set
// must be listed in it.
//
// Check has the shape of consignment.Options.Signatures.
type Verifier struct {
	Trusted [][]byte
}

func (v Verifier) trusted(signer []byte) bool {
	for _, t := range v.Trusted {
		if bytes.Equal(t, signer) {
			return true
		}
	}
	return false
}

func (v Verifier) Check(id ops.ContentID, sigs ops.ContentSigs) error {
	if len(sigs) == 0 {
		return ErrNoSignatures
	}
	anyTrusted := len(v.Trusted) == 0
	for i, sig := range sigs {
		if err := Verify(id, sig); err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		if !anyTrusted && v.trusted(sig.Signer) {
			anyTrusted = true
		}
	}
	if !anyTrusted {
		return ErrUntrusted
	}
	return nil
}
