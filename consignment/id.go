package consignment

import (
	"fmt"

	"xdao.co/consign/cidutil"
	"xdao.co/consign/commit"
	"xdao.co/consign/ops"
)

const tagConsignment = "urn:xdao.co:consign:consignment#2024-03-11"

// ID is the content address of a consignment.
type ID [32]byte

func (id ID) String() string { return cidutil.DigestString(id) }

// ParseID parses the textual form produced by ID.String.
func ParseID(s string) (ID, error) {
	d, err := cidutil.ParseDigest(s)
	if err != nil {
		return ID{}, wrapError(KindIdentity, "CSG-ID-001", fmt.Sprintf("invalid consignment id %q", s), err)
	}
	return ID(d), nil
}

// ConsignmentID computes the consignment's identity. Components are committed
// in a fixed order; multi-valued components are committed as sets or maps so
// the in-memory order of collections never affects the result. Operations
// contribute only their disclose hashes, so revealing seals keeps the id.
func (c *Consignment) ConsignmentID() ID {
	e := commit.NewEngine(tagConsignment)

	e.CommitUint(uint64(c.c.Version))
	e.CommitBool(c.c.Transfer)
	e.CommitDigest(c.ContractID())
	e.CommitDigest(c.c.Genesis.DiscloseHash())

	impls := make([]ops.ImplID, len(c.c.Ifaces))
	for i := range c.c.Ifaces {
		impls[i] = c.c.Ifaces[i].Impl.ImplID()
	}
	commit.CommitSet(e, impls)

	bundles := make([][32]byte, len(c.c.Bundles))
	for i := range c.c.Bundles {
		bundles[i] = c.c.Bundles[i].DiscloseHash()
	}
	commit.CommitSet(e, bundles)

	exts := make([][32]byte, len(c.c.Extensions))
	for i := range c.c.Extensions {
		exts[i] = c.c.Extensions[i].DiscloseHash()
	}
	commit.CommitSet(e, exts)

	commit.CommitMap(e, c.c.Terminals)

	attach := make([]ops.AttachID, 0, len(c.c.Attachments))
	for id := range c.c.Attachments {
		attach = append(attach, id)
	}
	commit.CommitSet(e, attach)

	suppl := make([]ops.SupplID, len(c.c.Supplements))
	for i := range c.c.Supplements {
		suppl[i] = c.c.Supplements[i].SupplID()
	}
	commit.CommitSet(e, suppl)

	e.CommitDigest(c.c.Types.ID())

	libs := make([]ops.LibID, len(c.c.Scripts))
	for i := range c.c.Scripts {
		libs[i] = c.c.Scripts[i].ID()
	}
	commit.CommitSet(e, libs)

	commit.CommitMap(e, c.c.Signatures)

	return ID(e.Finish())
}
