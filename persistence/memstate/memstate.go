// Package memstate is an in-memory persistence.StateProvider.
//
// Transactions are exclusive: BeginTransaction blocks until any other
// transaction finishes, and rollback restores a snapshot taken at begin.
package memstate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"xdao.co/consign/commit"
	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/validation"
)

var (
	ErrNoTransaction = errors.New("memstate: no transaction in progress")
	ErrClosed        = errors.New("memstate: provider closed")
)

type contract struct {
	id       ops.ContractID
	schemaID ops.SchemaID
	applied  map[ops.OpID]struct{}
	outputs  map[ops.Opout]persistence.OutputAssignment
	spent    map[ops.Opout]ops.OpID
}

func (c *contract) clone() *contract {
	return &contract{
		id:       c.id,
		schemaID: c.schemaID,
		applied:  maps.Clone(c.applied),
		outputs:  maps.Clone(c.outputs),
		spent:    maps.Clone(c.spent),
	}
}

type data struct {
	contracts map[ops.ContractID]*contract
	witnesses map[ops.WitnessID]ops.WitnessOrd
}

// setWitness records ord as the current order of its witness, including on
// every output it anchors.
func (d *data) setWitness(ord ops.WitnessOrd) {
	d.witnesses[ord.Witness] = ord
	for _, c := range d.contracts {
		for ref, out := range c.outputs {
			if out.Witness != nil && out.Witness.Witness == ord.Witness {
				o := ord
				out.Witness = &o
				c.outputs[ref] = out
			}
		}
	}
}

func (d *data) clone() *data {
	out := &data{
		contracts: make(map[ops.ContractID]*contract, len(d.contracts)),
		witnesses: maps.Clone(d.witnesses),
	}
	for id, c := range d.contracts {
		out.contracts[id] = c.clone()
	}
	return out
}

// Provider is the in-memory provider. The zero value is not usable; use New.
type Provider struct {
	txMu sync.Mutex // held for the duration of a transaction

	mu       sync.RWMutex
	d        *data
	snapshot *data
	closed   bool
}

var _ persistence.StateProvider = (*Provider)(nil)

func New() *Provider {
	return &Provider{d: &data{
		contracts: make(map[ops.ContractID]*contract),
		witnesses: make(map[ops.WitnessID]ops.WitnessOrd),
	}}
}

// Close makes every later call fail with ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Provider) BeginTransaction(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.txMu.Lock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.txMu.Unlock()
		return ErrClosed
	}
	p.snapshot = p.d.clone()
	return nil
}

func (p *Provider) CommitTransaction(context.Context) error {
	p.mu.Lock()
	if p.snapshot == nil {
		p.mu.Unlock()
		return ErrNoTransaction
	}
	p.snapshot = nil
	p.mu.Unlock()
	p.txMu.Unlock()
	return nil
}

func (p *Provider) RollbackTransaction(context.Context) error {
	p.mu.Lock()
	if p.snapshot == nil {
		p.mu.Unlock()
		return ErrNoTransaction
	}
	p.d = p.snapshot
	p.snapshot = nil
	p.mu.Unlock()
	p.txMu.Unlock()
	return nil
}

func (p *Provider) ContractState(ctx context.Context, id ops.ContractID) (persistence.ContractStateRead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	c, ok := p.d.contracts[id]
	if !ok {
		return nil, fmt.Errorf("memstate: contract %s: %w", id, persistence.ErrUnknownContract)
	}
	return snapshot(c), nil
}

func (p *Provider) RegisterContract(ctx context.Context, schema *ops.Schema, genesis *ops.Genesis) (persistence.ContractStateWrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if schema.SchemaID() != genesis.SchemaID {
		return nil, fmt.Errorf("memstate: schema %s does not match genesis schema %s", schema.SchemaID(), genesis.SchemaID)
	}
	id := genesis.ContractID()
	if _, ok := p.d.contracts[id]; !ok {
		p.d.contracts[id] = &contract{
			id:       id,
			schemaID: genesis.SchemaID,
			applied:  make(map[ops.OpID]struct{}),
			outputs:  make(map[ops.Opout]persistence.OutputAssignment),
			spent:    make(map[ops.Opout]ops.OpID),
		}
	}
	return &writer{p: p, id: id}, nil
}

func (p *Provider) UpdateContract(ctx context.Context, id ops.ContractID) (persistence.ContractStateWrite, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false, ErrClosed
	}
	if _, ok := p.d.contracts[id]; !ok {
		return nil, false, nil
	}
	return &writer{p: p, id: id}, true, nil
}

func (p *Provider) UpdateWitnesses(ctx context.Context, resolver validation.ResolveWitness, afterHeight uint32) (persistence.UpdateRes, error) {
	res := persistence.NewUpdateRes()
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return res, ErrClosed
	}
	var pending []ops.WitnessOrd
	for _, ord := range p.d.witnesses {
		if !ord.Ord.IsMined() || ord.Ord.Pos.Height >= afterHeight {
			pending = append(pending, ord)
		}
	}
	p.mu.RUnlock()
	slices.SortFunc(pending, func(a, b ops.WitnessOrd) int { return commit.Compare(a.Witness, b.Witness) })

	// Resolution happens without holding the lock: resolvers may block.
	updated := make(map[ops.WitnessID]ops.WitnessOrd)
	for _, old := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		status, err := resolver.ResolvePubWitnessOrd(ctx, old.Witness)
		if err != nil {
			res.Failed[old.Witness] = err.Error()
			continue
		}
		if status.Compare(old.Ord) == 0 {
			continue
		}
		updated[old.Witness] = ops.NewWitnessOrd(status, old.Witness)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ord := range updated {
		p.d.setWitness(ord)
		res.Succeeded[id] = ord
	}
	return res, nil
}

type writer struct {
	p  *Provider
	id ops.ContractID
}

func (w *writer) contract() (*contract, error) {
	if w.p.closed {
		return nil, ErrClosed
	}
	c, ok := w.p.d.contracts[w.id]
	if !ok {
		return nil, fmt.Errorf("memstate: contract %s: %w", w.id, persistence.ErrUnknownContract)
	}
	return c, nil
}

// apply records op's outputs and marks its inputs spent. Outputs already
// spent by an operation applied earlier are not added. The supplied witness
// order replaces any order known for that witness.
func (w *writer) apply(op ops.Operation, witness *ops.WitnessOrd) error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	c, err := w.contract()
	if err != nil {
		return err
	}
	if witness != nil {
		w.p.d.setWitness(*witness)
	}
	id := op.ID()
	if _, done := c.applied[id]; done {
		return nil
	}
	c.applied[id] = struct{}{}
	for _, prev := range op.PrevOuts() {
		delete(c.outputs, prev)
		c.spent[prev] = id
	}
	outs := op.Outputs()
	for i, ref := range ops.OutputRefs(op) {
		if _, spent := c.spent[ref]; spent {
			continue
		}
		c.outputs[ref] = persistence.OutputAssignment{
			Opout:   ref,
			Seal:    outs[i].Seal,
			State:   persistence.FromState(outs[i].State),
			Witness: witness,
		}
	}
	return nil
}

func (w *writer) AddGenesis(ctx context.Context, g *ops.Genesis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.ContractID() != w.id {
		return fmt.Errorf("memstate: genesis of %s added to contract %s", g.ContractID(), w.id)
	}
	return w.apply(g, nil)
}

func (w *writer) AddTransition(ctx context.Context, t *ops.Transition, ord ops.WitnessOrd) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.apply(t, &ord)
}

func (w *writer) AddExtension(ctx context.Context, x *ops.Extension, ord ops.WitnessOrd) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.apply(x, &ord)
}

func snapshot(c *contract) *persistence.Snapshot {
	outputs := make([]persistence.OutputAssignment, 0, len(c.outputs))
	for _, out := range c.outputs {
		outputs = append(outputs, out)
	}
	return persistence.NewSnapshot(c.id, c.schemaID, outputs)
}
