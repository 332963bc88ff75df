package consignment

import (
	"context"
	"slices"

	"xdao.co/consign/commit"
	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// IndexedConsignment is a lookup index over a consignment, used by validators.
type IndexedConsignment struct {
	c          *Consignment
	ops        map[ops.OpID]ops.Operation
	extensions []*ops.Extension
	bundles    map[ops.BundleID]*ops.TransitionBundle
	bundleIDs  []ops.BundleID
	opBundle   map[ops.OpID]ops.BundleID
	witnesses  map[ops.BundleID]ops.WitnessID
	pubs       map[ops.WitnessID]*ops.PubWitness
}

var _ validation.ConsignmentAPI = (*IndexedConsignment)(nil)

// NewIndex indexes c. The index refers to c's data; c must outlive it.
// When a bundle is anchored more than once, the first occurrence wins.
func NewIndex(c *Consignment) *IndexedConsignment {
	idx := &IndexedConsignment{
		c:         c,
		ops:       make(map[ops.OpID]ops.Operation),
		bundles:   make(map[ops.BundleID]*ops.TransitionBundle),
		opBundle:  make(map[ops.OpID]ops.BundleID),
		witnesses: make(map[ops.BundleID]ops.WitnessID),
		pubs:      make(map[ops.WitnessID]*ops.PubWitness),
	}
	g := c.Genesis()
	idx.ops[g.ID()] = g

	for i := range c.c.Extensions {
		x := &c.c.Extensions[i]
		idx.ops[x.ID()] = x
		idx.extensions = append(idx.extensions, x)
	}

	for i := range c.c.Bundles {
		bw := &c.c.Bundles[i]
		if _, ok := idx.pubs[bw.Witness.ID]; !ok || len(idx.pubs[bw.Witness.ID].Tx) == 0 {
			idx.pubs[bw.Witness.ID] = &bw.Witness
		}
		for j := range bw.Anchors {
			b := &bw.Anchors[j].Bundle
			bid := b.BundleID()
			if _, dup := idx.bundles[bid]; dup {
				continue
			}
			idx.bundles[bid] = b
			idx.bundleIDs = append(idx.bundleIDs, bid)
			idx.witnesses[bid] = bw.Witness.ID
			for k := range b.Transitions {
				t := &b.Transitions[k]
				id := t.ID()
				idx.ops[id] = t
				idx.opBundle[id] = bid
			}
		}
	}
	slices.SortFunc(idx.bundleIDs, commit.Compare[ops.BundleID])
	return idx
}

func (x *IndexedConsignment) Consignment() *Consignment { return x.c }
func (x *IndexedConsignment) Schema() *ops.Schema       { return x.c.Schema() }
func (x *IndexedConsignment) Genesis() *ops.Genesis     { return x.c.Genesis() }

func (x *IndexedConsignment) Operation(id ops.OpID) (ops.Operation, bool) {
	op, ok := x.ops[id]
	return op, ok
}

func (x *IndexedConsignment) Extensions() []*ops.Extension { return x.extensions }

// BundleIDs returns the ids of all bundles in ascending order.
func (x *IndexedConsignment) BundleIDs() []ops.BundleID { return x.bundleIDs }

func (x *IndexedConsignment) Bundle(id ops.BundleID) (*ops.TransitionBundle, bool) {
	b, ok := x.bundles[id]
	return b, ok
}

func (x *IndexedConsignment) BundleForOp(id ops.OpID) (ops.BundleID, bool) {
	b, ok := x.opBundle[id]
	return b, ok
}

func (x *IndexedConsignment) WitnessForBundle(id ops.BundleID) (ops.WitnessID, bool) {
	w, ok := x.witnesses[id]
	return w, ok
}

func (x *IndexedConsignment) Terminals() map[ops.BundleID]ops.SecretSeal { return x.c.Terminals() }

// PubWitness returns the public witness carried in the consignment.
func (x *IndexedConsignment) PubWitness(id ops.WitnessID) (*ops.PubWitness, bool) {
	w, ok := x.pubs[id]
	return w, ok
}

// Resolver answers witness lookups from the consignment where it can and
// defers to a fallback otherwise. Witness ordering always comes from the
// fallback: a consignment can carry a transaction but cannot attest to its
// position.
type Resolver struct {
	idx      *IndexedConsignment
	fallback validation.ResolveWitness
}

var _ validation.ResolveWitness = (*Resolver)(nil)

// NewResolver wraps fallback, which may be nil.
func NewResolver(idx *IndexedConsignment, fallback validation.ResolveWitness) *Resolver {
	return &Resolver{idx: idx, fallback: fallback}
}

func (r *Resolver) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	if w, ok := r.idx.PubWitness(id); ok && len(w.Tx) > 0 {
		return w, nil
	}
	if r.fallback == nil {
		return nil, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
	}
	return r.fallback.ResolvePubWitness(ctx, id)
}

func (r *Resolver) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	if r.fallback == nil {
		return ops.WitnessStatus{}, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id}
	}
	return r.fallback.ResolvePubWitnessOrd(ctx, id)
}
