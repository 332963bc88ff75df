package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const deriveLabel = "xdao-consign-signer-v1"

// SignerKey formats an ed25519 public key as "ed25519:<base64>".
func SignerKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// SignerKeyFromSeed returns the signer key string of an ed25519 seed.
func SignerKeyFromSeed(seed []byte) string {
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	key, _ := SignerKey(pub)
	return key
}

// ParseSignerKey parses the SignerKey format back to raw public key bytes.
func ParseSignerKey(s string) ([]byte, error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || alg != AlgEd25519 {
		return nil, fmt.Errorf("%w: want ed25519:<base64>", ErrInvalidKey)
	}
	pub, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(pub))
	}
	return pub, nil
}

// DeriveRoleSeed deterministically derives a role-specific ed25519 seed from
// a root seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := checkName("role", role); err != nil {
		return nil, err
	}
	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(deriveLabel))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:" + role))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}
