package ops

import (
	"encoding/hex"

	"xdao.co/consign/commit"
)

// CloseMethod is the single-use-seal closing method of a seal or anchor.
type CloseMethod string

const (
	TapretFirst CloseMethod = "tapret1st"
	OpretFirst  CloseMethod = "opret1st"
)

// GraphSeal is a revealed seal definition: an output of a layer-1 transaction.
// A zero Txid refers to the witness transaction of the operation itself.
type GraphSeal struct {
	Method   CloseMethod
	Txid     WitnessID
	Vout     uint32
	Blinding uint64
}

// SecretSeal is the concealed (hashed) form of a GraphSeal.
type SecretSeal [32]byte

func (s SecretSeal) String() string { return "utxob:" + hex.EncodeToString(s[:]) }

// Conceal returns the secret form of the seal.
func (s GraphSeal) Conceal() SecretSeal {
	return SecretSeal(commit.Digest(tagSecretSeal, s))
}

// AssignSeal is the seal of an assignment, which is either revealed or known
// only by its concealed form.
type AssignSeal struct {
	Revealed  *GraphSeal `cbor:",omitempty"`
	Concealed SecretSeal
}

// RevealedSeal builds an assignment seal from a revealed seal definition.
func RevealedSeal(s GraphSeal) AssignSeal {
	return AssignSeal{Revealed: &s, Concealed: s.Conceal()}
}

// ConcealedSeal builds an assignment seal known only in concealed form.
func ConcealedSeal(s SecretSeal) AssignSeal {
	return AssignSeal{Concealed: s}
}

// Secret returns the concealed form regardless of revelation.
func (a AssignSeal) Secret() SecretSeal {
	if a.Revealed != nil {
		return a.Revealed.Conceal()
	}
	return a.Concealed
}

// IsRevealed reports whether the seal definition is known.
func (a AssignSeal) IsRevealed() bool { return a.Revealed != nil }

// Reveal sets the revealed definition if seal matches the concealed form.
func (a *AssignSeal) Reveal(seal GraphSeal) bool {
	secret := seal.Conceal()
	if a.Secret() != secret {
		return false
	}
	a.Revealed = &seal
	a.Concealed = secret
	return true
}

func (a AssignSeal) clone() AssignSeal {
	out := a
	if a.Revealed != nil {
		s := *a.Revealed
		out.Revealed = &s
	}
	return out
}
