package ops

import (
	"bytes"
	"cmp"
	"maps"
	"slices"
	"strings"

	"xdao.co/consign/commit"
)

// Schema is the rule set a contract is issued under. The rules themselves are
// opaque here; they are interpreted by a Validator.
type Schema struct {
	Name  string
	Rules []byte
	// Types and Libs reference the type system and script libraries the
	// rules depend on.
	Types TypeSysID
	Libs  []LibID
}

func (s *Schema) SchemaID() SchemaID { return SchemaID(commit.Digest(tagSchema, s)) }

func (s *Schema) Clone() *Schema {
	out := *s
	out.Rules = bytes.Clone(s.Rules)
	out.Libs = slices.Clone(s.Libs)
	return &out
}

// Iface is an interface: a named projection of contract state.
type Iface struct {
	Name string
	Spec []byte
}

func (i *Iface) IfaceID() IfaceID { return IfaceID(commit.Digest(tagIface, i)) }

// IfaceImpl binds an interface to a schema.
type IfaceImpl struct {
	IfaceID  IfaceID
	SchemaID SchemaID
	Mapping  []byte
}

func (i *IfaceImpl) ImplID() ImplID { return ImplID(commit.Digest(tagImpl, i)) }

// IfacePair is an interface carried together with its implementation.
type IfacePair struct {
	Iface Iface
	Impl  IfaceImpl
}

// Consistent reports whether the implementation points at the carried interface.
func (p *IfacePair) Consistent() bool { return p.Impl.IfaceID == p.Iface.IfaceID() }

func (p *IfacePair) Clone() IfacePair {
	out := *p
	out.Iface.Spec = bytes.Clone(p.Iface.Spec)
	out.Impl.Mapping = bytes.Clone(p.Impl.Mapping)
	return out
}

// TypeDef is a single named type definition.
type TypeDef struct {
	Name string
	Def  []byte
}

// TypeSystem is the set of types referenced by a schema and its interfaces.
type TypeSystem struct {
	Types []TypeDef
}

// ID commits to the type definitions ordered by name, then definition.
func (t *TypeSystem) ID() TypeSysID {
	defs := slices.Clone(t.Types)
	slices.SortFunc(defs, func(a, b TypeDef) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), bytes.Compare(a.Def, b.Def))
	})
	return TypeSysID(commit.Digest(tagTypes, defs))
}

func (t *TypeSystem) Clone() TypeSystem {
	if t.Types == nil {
		return TypeSystem{}
	}
	out := TypeSystem{Types: make([]TypeDef, len(t.Types))}
	for i, d := range t.Types {
		out.Types[i] = TypeDef{Name: d.Name, Def: bytes.Clone(d.Def)}
	}
	return out
}

// Lib is a validation script library.
type Lib struct {
	Name string
	Code []byte
}

func (l *Lib) ID() LibID { return LibID(commit.Digest(tagLib, l)) }

func (l *Lib) Clone() Lib { return Lib{Name: l.Name, Code: bytes.Clone(l.Code)} }

// Supplement carries non-consensus annotations about some content.
type Supplement struct {
	ContentID   ContentID
	Author      string
	Annotations map[string]string
}

func (s *Supplement) SupplID() SupplID { return SupplID(commit.Digest(tagSuppl, s)) }

func (s *Supplement) Clone() Supplement {
	out := *s
	out.Annotations = maps.Clone(s.Annotations)
	return out
}

// ContentSig is a signature over a content id.
type ContentSig struct {
	Alg     string
	HashAlg string
	Signer  []byte
	Sig     []byte
}

// ContentSigs are the signatures over one piece of content.
type ContentSigs []ContentSig

func (s ContentSigs) Clone() ContentSigs {
	if s == nil {
		return nil
	}
	out := make(ContentSigs, len(s))
	for i, sig := range s {
		sig.Signer = bytes.Clone(sig.Signer)
		sig.Sig = bytes.Clone(sig.Sig)
		out[i] = sig
	}
	return out
}
