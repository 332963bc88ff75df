package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/consign/ops"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"

	HashSHA256  = "sha256"
	HashSHA512  = "sha512"
	HashSHA3256 = "sha3-256"
)

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case HashSHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case HashSHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case HashSHA3256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, hashAlg)
	}
}

// SignEd25519 signs hash(id) with an ed25519 key.
func SignEd25519(id ops.ContentID, hashAlg string, privateKey ed25519.PrivateKey) (ops.ContentSig, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return ops.ContentSig{}, fmt.Errorf("ed25519 private key must be %d bytes", ed25519.PrivateKeySize)
	}
	digest, err := digestFor(hashAlg, id[:])
	if err != nil {
		return ops.ContentSig{}, err
	}
	return ops.ContentSig{
		Alg:     AlgEd25519,
		HashAlg: hashAlg,
		Signer:  append([]byte(nil), privateKey.Public().(ed25519.PublicKey)...),
		Sig:     ed25519.Sign(privateKey, digest),
	}, nil
}

// SignDilithium3 signs hash(id) with a dilithium3 key.
func SignDilithium3(id ops.ContentID, hashAlg string, privateKey *mode3.PrivateKey) (ops.ContentSig, error) {
	if privateKey == nil {
		return ops.ContentSig{}, fmt.Errorf("missing private key")
	}
	digest, err := digestFor(hashAlg, id[:])
	if err != nil {
		return ops.ContentSig{}, err
	}
	pub, err := privateKey.Public().(*mode3.PublicKey).MarshalBinary()
	if err != nil {
		return ops.ContentSig{}, fmt.Errorf("encode dilithium3 public key: %w", err)
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return ops.ContentSig{Alg: AlgDilithium3, HashAlg: hashAlg, Signer: pub, Sig: sig}, nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}
