package consignment

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"xdao.co/consign/armor"
	"xdao.co/consign/commit"
	"xdao.co/consign/ops"
)

// ArmorTitle is the title of armored consignment blocks.
const ArmorTitle = "XDAO CONSIGNMENT"

// Armor header keys.
const (
	HeaderID         = "Id"
	HeaderVersion    = "Version"
	HeaderType       = "Type"
	HeaderContract   = "Contract"
	HeaderSchema     = "Schema"
	HeaderInterfaces = "Interfaces"
	HeaderTerminals  = "Terminals"
)

type wireTerminal struct {
	Bundle ops.BundleID
	Seal   ops.SecretSeal
}

type wireAttachment struct {
	ID   ops.AttachID
	Data []byte
}

type wireSignatures struct {
	Content ops.ContentID
	Sigs    ops.ContentSigs
}

// wireConsignment is the serialized body. Maps are carried as entry lists
// sorted by key so the encoding is canonical.
type wireConsignment struct {
	Version     uint16
	Transfer    bool
	Terminals   []wireTerminal
	Genesis     ops.Genesis
	Extensions  []ops.Extension
	Bundles     []ops.BundledWitness
	Schema      ops.Schema
	Ifaces      []ops.IfacePair
	Supplements []ops.Supplement
	Types       ops.TypeSystem
	Scripts     []ops.Lib
	Attachments []wireAttachment
	Signatures  []wireSignatures
}

// MarshalBinary returns the canonical binary encoding of the consignment.
func (c *Consignment) MarshalBinary() ([]byte, error) {
	w := wireConsignment{
		Version:     c.c.Version,
		Transfer:    c.c.Transfer,
		Genesis:     c.c.Genesis,
		Extensions:  c.c.Extensions,
		Bundles:     c.c.Bundles,
		Schema:      c.c.Schema,
		Ifaces:      c.c.Ifaces,
		Supplements: c.c.Supplements,
		Types:       c.c.Types,
		Scripts:     c.c.Scripts,
	}
	for bid, seal := range c.c.Terminals {
		w.Terminals = append(w.Terminals, wireTerminal{Bundle: bid, Seal: seal})
	}
	slices.SortFunc(w.Terminals, func(a, b wireTerminal) int { return commit.Compare(a.Bundle, b.Bundle) })
	for id, data := range c.c.Attachments {
		w.Attachments = append(w.Attachments, wireAttachment{ID: id, Data: data})
	}
	slices.SortFunc(w.Attachments, func(a, b wireAttachment) int { return commit.Compare(a.ID, b.ID) })
	for id, sigs := range c.c.Signatures {
		w.Signatures = append(w.Signatures, wireSignatures{Content: id, Sigs: sigs})
	}
	slices.SortFunc(w.Signatures, func(a, b wireSignatures) int { return commit.Compare(a.Content, b.Content) })

	out, err := commit.Marshal(w)
	if err != nil {
		return nil, wrapError(KindDecode, "CSG-ENC-001", "encode consignment", err)
	}
	return out, nil
}

// Decode parses a binary consignment body and builds a consignment of the
// given kind.
func Decode(data []byte, kind ContainerKind) (*Consignment, error) {
	var w wireConsignment
	if err := commit.Unmarshal(data, &w); err != nil {
		return nil, wrapError(KindDecode, "CSG-DEC-002", "decode consignment", err)
	}
	c := Contents{
		Version:     w.Version,
		Transfer:    w.Transfer,
		Genesis:     w.Genesis,
		Extensions:  w.Extensions,
		Bundles:     w.Bundles,
		Schema:      w.Schema,
		Ifaces:      w.Ifaces,
		Supplements: w.Supplements,
		Types:       w.Types,
		Scripts:     w.Scripts,
	}
	if len(w.Terminals) > 0 {
		c.Terminals = make(map[ops.BundleID]ops.SecretSeal, len(w.Terminals))
		for _, t := range w.Terminals {
			if _, dup := c.Terminals[t.Bundle]; dup {
				return nil, newError(KindDecode, "CSG-DEC-003", "duplicate terminal %s", t.Bundle)
			}
			c.Terminals[t.Bundle] = t.Seal
		}
	}
	if len(w.Attachments) > 0 {
		c.Attachments = make(map[ops.AttachID][]byte, len(w.Attachments))
		for _, a := range w.Attachments {
			if _, dup := c.Attachments[a.ID]; dup {
				return nil, newError(KindDecode, "CSG-DEC-003", "duplicate attachment %s", a.ID)
			}
			c.Attachments[a.ID] = a.Data
		}
	}
	if len(w.Signatures) > 0 {
		c.Signatures = make(map[ops.ContentID]ops.ContentSigs, len(w.Signatures))
		for _, s := range w.Signatures {
			if _, dup := c.Signatures[s.Content]; dup {
				return nil, newError(KindDecode, "CSG-DEC-003", "duplicate signatures for %s", s.Content)
			}
			c.Signatures[s.Content] = s.Sigs
		}
	}
	return newConsignment(kind, c)
}

func (c *Consignment) typeHeader() string {
	if c.c.Transfer {
		return "transfer"
	}
	return "contract"
}

func (c *Consignment) armorHeaders() []armor.Header {
	headers := []armor.Header{
		{Key: HeaderID, Value: c.ConsignmentID().String()},
		{Key: HeaderVersion, Value: strconv.Itoa(int(c.c.Version))},
		{Key: HeaderType, Value: c.typeHeader()},
		{Key: HeaderContract, Value: c.ContractID().String()},
		{Key: HeaderSchema, Value: c.c.Schema.SchemaID().String()},
	}
	if len(c.c.Ifaces) > 0 {
		names := make([]string, len(c.c.Ifaces))
		for i := range c.c.Ifaces {
			names[i] = c.c.Ifaces[i].Iface.Name
		}
		slices.Sort(names)
		headers = append(headers, armor.Header{Key: HeaderInterfaces, Value: strings.Join(names, ", ")})
	}
	if len(c.c.Terminals) > 0 {
		ids := make([]ops.BundleID, 0, len(c.c.Terminals))
		for bid := range c.c.Terminals {
			ids = append(ids, bid)
		}
		slices.SortFunc(ids, commit.Compare[ops.BundleID])
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = id.String()
		}
		headers = append(headers, armor.Header{Key: HeaderTerminals, Value: strings.Join(strs, ", ")})
	}
	return headers
}

// Armor renders the consignment as armored text.
func (c *Consignment) Armor() ([]byte, error) {
	body, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return armor.Render(armor.Block{Title: ArmorTitle, Headers: c.armorHeaders(), Body: body})
}

// String returns the armored text, or an error marker if rendering fails.
func (c *Consignment) String() string {
	out, err := c.Armor()
	if err != nil {
		return fmt.Sprintf("<consignment %s: %v>", c.ConsignmentID(), err)
	}
	return string(out)
}

// ParseContract parses armored text as a Contract consignment.
func ParseContract(data []byte) (*Consignment, error) { return parseArmored(data, KindContract) }

// ParseTransfer parses armored text as a Transfer consignment.
func ParseTransfer(data []byte) (*Consignment, error) { return parseArmored(data, KindTransfer) }

// Parse parses armored text, taking the kind from the Type header.
func Parse(data []byte) (*Consignment, error) {
	block, err := armor.Parse(data, ArmorTitle)
	if err != nil {
		return nil, wrapError(KindDecode, "CSG-ARM-001", "invalid armored consignment", err)
	}
	kind := KindContract
	if v, _ := block.Get(HeaderType); v == "transfer" {
		kind = KindTransfer
	}
	return fromBlock(block, kind)
}

func parseArmored(data []byte, kind ContainerKind) (*Consignment, error) {
	block, err := armor.Parse(data, ArmorTitle)
	if err != nil {
		return nil, wrapError(KindDecode, "CSG-ARM-001", "invalid armored consignment", err)
	}
	return fromBlock(block, kind)
}

// fromBlock decodes the body and checks every header against the values
// recomputed from it.
func fromBlock(block *armor.Block, kind ContainerKind) (*Consignment, error) {
	c, err := Decode(block.Body, kind)
	if err != nil {
		return nil, err
	}

	want := c.armorHeaders()
	if len(block.Headers) != len(want) {
		return nil, newError(KindDecode, "CSG-ARM-002", "armor headers do not match consignment: got %d headers, want %d", len(block.Headers), len(want))
	}
	for i, h := range want {
		got := block.Headers[i]
		if got.Key != h.Key {
			return nil, newError(KindDecode, "CSG-ARM-002", "armor header %d is %s, want %s", i, got.Key, h.Key)
		}
		if got.Value == h.Value {
			continue
		}
		switch h.Key {
		case HeaderID:
			return nil, newError(KindIdentity, "CSG-ARM-003", "consignment id mismatch: header %s, computed %s", got.Value, h.Value)
		case HeaderType:
			return nil, newError(KindType, "CSG-ARM-004", "declared type %s does not match consignment data (%s)", got.Value, h.Value)
		default:
			return nil, newError(KindIdentity, "CSG-ARM-005", "%s header mismatch: header %s, computed %s", h.Key, got.Value, h.Value)
		}
	}
	return c, nil
}
