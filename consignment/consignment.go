// Package consignment implements the consignment container: a self-contained,
// content-addressed bundle of contract history exchanged between parties.
//
// A consignment is either a Contract consignment (full issuance history) or a
// Transfer consignment (the history proving a specific transfer). The kind is
// fixed at construction; the Transfer field inside the data is advisory and is
// checked against the kind during validation.
//
// Consignments are immutable once constructed. Accessors return the internal
// collections without copying; callers must not modify them.
package consignment

import (
	"bytes"
	"maps"

	"xdao.co/consign/ops"
)

// CurrentVersion is the container format version produced by this package.
const CurrentVersion uint16 = 2

// Collection limits. Exceeding any of them is a KindLimit error.
const (
	MaxTiny           = 0xFF
	MaxSmall          = 0xFFFF
	MaxScripts        = 1024
	MaxSigsPerContent = 10
)

// ContainerKind is the construction-time kind of a consignment.
type ContainerKind uint8

const (
	KindContract ContainerKind = iota
	KindTransfer
)

func (k ContainerKind) String() string {
	if k == KindTransfer {
		return "transfer"
	}
	return "contract"
}

// Contents is the data a consignment is built from.
type Contents struct {
	Version     uint16
	Transfer    bool
	Terminals   map[ops.BundleID]ops.SecretSeal
	Genesis     ops.Genesis
	Extensions  []ops.Extension
	Bundles     []ops.BundledWitness
	Schema      ops.Schema
	Ifaces      []ops.IfacePair
	Supplements []ops.Supplement
	Types       ops.TypeSystem
	Scripts     []ops.Lib
	Attachments map[ops.AttachID][]byte
	Signatures  map[ops.ContentID]ops.ContentSigs
}

func (c *Contents) clone() Contents {
	out := Contents{
		Version:  c.Version,
		Transfer: c.Transfer,
		Genesis:  *c.Genesis.Clone(),
		Schema:   *c.Schema.Clone(),
		Types:    c.Types.Clone(),
	}
	out.Terminals = maps.Clone(c.Terminals)
	if c.Extensions != nil {
		out.Extensions = make([]ops.Extension, len(c.Extensions))
		for i := range c.Extensions {
			out.Extensions[i] = *c.Extensions[i].Clone()
		}
	}
	if c.Bundles != nil {
		out.Bundles = make([]ops.BundledWitness, len(c.Bundles))
		for i := range c.Bundles {
			out.Bundles[i] = c.Bundles[i].Clone()
		}
	}
	if c.Ifaces != nil {
		out.Ifaces = make([]ops.IfacePair, len(c.Ifaces))
		for i := range c.Ifaces {
			out.Ifaces[i] = c.Ifaces[i].Clone()
		}
	}
	if c.Supplements != nil {
		out.Supplements = make([]ops.Supplement, len(c.Supplements))
		for i := range c.Supplements {
			out.Supplements[i] = c.Supplements[i].Clone()
		}
	}
	if c.Scripts != nil {
		out.Scripts = make([]ops.Lib, len(c.Scripts))
		for i := range c.Scripts {
			out.Scripts[i] = c.Scripts[i].Clone()
		}
	}
	if c.Attachments != nil {
		out.Attachments = make(map[ops.AttachID][]byte, len(c.Attachments))
		for k, v := range c.Attachments {
			out.Attachments[k] = bytes.Clone(v)
		}
	}
	if c.Signatures != nil {
		out.Signatures = make(map[ops.ContentID]ops.ContentSigs, len(c.Signatures))
		for k, v := range c.Signatures {
			out.Signatures[k] = v.Clone()
		}
	}
	return out
}

func checkLimit(name string, n, limit int) error {
	if n > limit {
		return newError(KindLimit, "CSG-LIM-001", "%s: %d entries exceed the limit of %d", name, n, limit)
	}
	return nil
}

func (c *Contents) checkLimits() error {
	checks := []struct {
		name     string
		n, limit int
	}{
		{"terminals", len(c.Terminals), MaxSmall},
		{"extensions", len(c.Extensions), MaxSmall},
		{"bundles", len(c.Bundles), MaxSmall},
		{"ifaces", len(c.Ifaces), MaxTiny},
		{"supplements", len(c.Supplements), MaxTiny},
		{"types", len(c.Types.Types), MaxSmall},
		{"scripts", len(c.Scripts), MaxScripts},
		{"attachments", len(c.Attachments), MaxSmall},
		{"signatures", len(c.Signatures), MaxSmall},
	}
	for _, chk := range checks {
		if err := checkLimit(chk.name, chk.n, chk.limit); err != nil {
			return err
		}
	}
	for id, sigs := range c.Signatures {
		if len(sigs) == 0 {
			return newError(KindLimit, "CSG-LIM-002", "signatures for %s: empty signature set", id)
		}
		if err := checkLimit("signatures for "+id.String(), len(sigs), MaxSigsPerContent); err != nil {
			return err
		}
	}
	return nil
}

// Consignment is an immutable consignment container.
type Consignment struct {
	kind ContainerKind
	c    Contents
}

func newConsignment(kind ContainerKind, c Contents) (*Consignment, error) {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Version != CurrentVersion {
		return nil, newError(KindDecode, "CSG-DEC-001", "unsupported container version %d", c.Version)
	}
	if err := c.checkLimits(); err != nil {
		return nil, err
	}
	return &Consignment{kind: kind, c: c}, nil
}

// NewContract builds a Contract consignment. It takes ownership of c's
// collections.
func NewContract(c Contents) (*Consignment, error) { return newConsignment(KindContract, c) }

// NewTransfer builds a Transfer consignment. It takes ownership of c's
// collections.
func NewTransfer(c Contents) (*Consignment, error) { return newConsignment(KindTransfer, c) }

func (c *Consignment) Kind() ContainerKind { return c.kind }
func (c *Consignment) Version() uint16     { return c.c.Version }

// Transfer is the advisory transfer flag carried in the data.
func (c *Consignment) Transfer() bool { return c.c.Transfer }

func (c *Consignment) ContractID() ops.ContractID { return c.c.Genesis.ContractID() }
func (c *Consignment) SchemaID() ops.SchemaID     { return c.c.Genesis.SchemaID }
func (c *Consignment) Genesis() *ops.Genesis      { return &c.c.Genesis }
func (c *Consignment) Schema() *ops.Schema        { return &c.c.Schema }
func (c *Consignment) Types() *ops.TypeSystem     { return &c.c.Types }

func (c *Consignment) Extensions() []ops.Extension            { return c.c.Extensions }
func (c *Consignment) BundledWitnesses() []ops.BundledWitness { return c.c.Bundles }
func (c *Consignment) Ifaces() []ops.IfacePair                { return c.c.Ifaces }
func (c *Consignment) Supplements() []ops.Supplement          { return c.c.Supplements }
func (c *Consignment) Scripts() []ops.Lib                     { return c.c.Scripts }

func (c *Consignment) Terminals() map[ops.BundleID]ops.SecretSeal    { return c.c.Terminals }
func (c *Consignment) Attachments() map[ops.AttachID][]byte          { return c.c.Attachments }
func (c *Consignment) Signatures() map[ops.ContentID]ops.ContentSigs { return c.c.Signatures }

// Contents returns a deep copy of the consignment data, suitable for building
// a modified consignment.
func (c *Consignment) Contents() Contents { return c.c.clone() }

// ConsignmentExt is implemented by containers that give read access to a
// consignment, owned (*Consignment) or wrapped (*ValidConsignment).
type ConsignmentExt interface {
	Kind() ContainerKind
	ContractID() ops.ContractID
	SchemaID() ops.SchemaID
	Schema() *ops.Schema
	Genesis() *ops.Genesis
	Extensions() []ops.Extension
	BundledWitnesses() []ops.BundledWitness
	Terminals() map[ops.BundleID]ops.SecretSeal
}

var _ ConsignmentExt = (*Consignment)(nil)

// RevealTerminalSeals returns a new consignment in which the outputs of every
// terminal bundle whose concealed seal is mapped by reveal to a revealed seal
// carry that revealed seal. reveal returns nil to leave a seal concealed.
//
// The receiver is not modified and the consignment id is unchanged.
func (c *Consignment) RevealTerminalSeals(reveal func(ops.SecretSeal) (*ops.GraphSeal, error)) (*Consignment, error) {
	out := &Consignment{kind: c.kind, c: c.c.clone()}
	for bid, secret := range out.c.Terminals {
		seal, err := reveal(secret)
		if err != nil {
			return nil, err
		}
		if seal == nil || seal.Conceal() != secret {
			continue
		}
		for i := range out.c.Bundles {
			for j := range out.c.Bundles[i].Anchors {
				b := &out.c.Bundles[i].Anchors[j].Bundle
				if b.BundleID() == bid {
					b.RevealSeal(*seal)
				}
			}
		}
	}
	return out, nil
}

// IntoContract relabels the consignment as a Contract consignment and clears
// the transfer flag. No data is removed.
func (c *Consignment) IntoContract() *Consignment {
	out := &Consignment{kind: KindContract, c: c.c.clone()}
	out.c.Transfer = false
	return out
}
