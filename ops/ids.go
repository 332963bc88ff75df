// Package ops defines the contract operation model carried by consignments:
// genesis, state transitions, state extensions, their assignments and seals,
// transition bundles anchored to public witnesses, and the schema/interface
// records a contract is issued under.
//
// Every record has a deterministic identifier derived with the commit package.
// Identifiers that must survive selective revelation (operation ids, bundle ids,
// disclose hashes) are computed over concealed projections only.
package ops

import (
	"encoding/hex"
	"fmt"

	"xdao.co/consign/cidutil"
	"xdao.co/consign/commit"
)

// Commitment tags. Changing any of them changes every derived identifier.
const (
	tagOperation  = "urn:xdao.co:consign:operation#2024-02-03"
	tagBundle     = "urn:xdao.co:consign:bundle#2024-02-14"
	tagDisclose   = "urn:xdao.co:consign:disclose#2024-02-16"
	tagSecretSeal = "urn:xdao.co:consign:seal#2024-02-03"
	tagState      = "urn:xdao.co:consign:state#2024-02-12"
	tagSchema     = "urn:xdao.co:consign:schema#2024-02-03"
	tagIface      = "urn:xdao.co:consign:iface#2024-02-04"
	tagImpl       = "urn:xdao.co:consign:impl#2024-02-04"
	tagTypes      = "urn:xdao.co:consign:types#2024-02-03"
	tagLib        = "urn:xdao.co:consign:lib#2024-02-03"
	tagSuppl      = "urn:xdao.co:consign:supplement#2024-03-11"
	tagAttach     = "urn:xdao.co:consign:attachment#2024-02-12"
	tagAnchor     = "urn:xdao.co:consign:anchor#2024-02-14"
)

type (
	// OpID identifies an operation (genesis, transition or extension).
	OpID [32]byte
	// ContractID is the OpID of a contract's genesis.
	ContractID [32]byte
	SchemaID   [32]byte
	BundleID   [32]byte
	AttachID   [32]byte
	IfaceID    [32]byte
	ImplID     [32]byte
	TypeSysID  [32]byte
	LibID      [32]byte
	SupplID    [32]byte
	// ContentID names a piece of consignment content covered by signatures.
	ContentID [32]byte
	// WitnessID is the id of a public witness (a layer-1 transaction).
	WitnessID [32]byte
)

func (id OpID) String() string       { return cidutil.DigestString(id) }
func (id ContractID) String() string { return cidutil.DigestString(id) }
func (id SchemaID) String() string   { return cidutil.DigestString(id) }
func (id BundleID) String() string   { return cidutil.DigestString(id) }
func (id AttachID) String() string   { return cidutil.DigestString(id) }
func (id IfaceID) String() string    { return cidutil.DigestString(id) }
func (id ImplID) String() string     { return cidutil.DigestString(id) }
func (id TypeSysID) String() string  { return cidutil.DigestString(id) }
func (id LibID) String() string      { return cidutil.DigestString(id) }
func (id SupplID) String() string    { return cidutil.DigestString(id) }
func (id ContentID) String() string  { return cidutil.DigestString(id) }

// String renders witness ids as hex, the way layer-1 transaction ids are shown.
func (id WitnessID) String() string { return hex.EncodeToString(id[:]) }

// ParseContractID parses the textual form produced by ContractID.String.
func ParseContractID(s string) (ContractID, error) {
	d, err := cidutil.ParseDigest(s)
	if err != nil {
		return ContractID{}, fmt.Errorf("invalid contract id %q: %w", s, err)
	}
	return ContractID(d), nil
}

// ParseSchemaID parses the textual form produced by SchemaID.String.
func ParseSchemaID(s string) (SchemaID, error) {
	d, err := cidutil.ParseDigest(s)
	if err != nil {
		return SchemaID{}, fmt.Errorf("invalid schema id %q: %w", s, err)
	}
	return SchemaID(d), nil
}

// ParseBundleID parses the textual form produced by BundleID.String.
func ParseBundleID(s string) (BundleID, error) {
	d, err := cidutil.ParseDigest(s)
	if err != nil {
		return BundleID{}, fmt.Errorf("invalid bundle id %q: %w", s, err)
	}
	return BundleID(d), nil
}

// ParseWitnessID parses a 64-character hex witness id.
func ParseWitnessID(s string) (WitnessID, error) {
	var id WitnessID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid witness id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid witness id %q: want %d bytes, got %d", s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// AttachmentID derives the id of an attachment blob.
func AttachmentID(data []byte) AttachID {
	e := commit.NewEngine(tagAttach)
	e.CommitBytes(data)
	return AttachID(e.Finish())
}
