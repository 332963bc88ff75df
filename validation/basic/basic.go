// Package basic is a structural Validator. It checks the contract graph a
// consignment carries (ids, references, witness resolution) but interprets no
// schema rules or scripts.
package basic

import (
	"context"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// Rule IDs.
const (
	RuleSchemaID       = "CSG-VAL-001"
	RuleNetwork        = "CSG-VAL-002"
	RuleContractID     = "CSG-VAL-003"
	RuleOpContract     = "CSG-VAL-004"
	RuleMissingInput   = "CSG-VAL-005"
	RuleInputMap       = "CSG-VAL-006"
	RuleRedeemed       = "CSG-VAL-007"
	RuleUnresolved     = "CSG-VAL-008"
	RuleDoubleSpend    = "CSG-VAL-009"
	RuleMissingWitness = "CSG-VAL-010"
)

// Check is the state shared by rules during one validation run.
type Check struct {
	Ctx        context.Context
	C          validation.ConsignmentAPI
	Resolver   validation.ResolveWitness
	Testnet    bool
	Schema     *ops.Schema
	ContractID ops.ContractID
	Status     *validation.Status
}

// Rule is a named structural check. Apply must be deterministic and record
// its findings on the Check's Status.
type Rule struct {
	ID    string
	Apply func(*Check)
}

// Validator runs Rules in order. A zero Validator runs DefaultRules.
type Validator struct {
	Rules []Rule
}

var _ validation.Validator = Validator{}

func (v Validator) Validate(ctx context.Context, c validation.ConsignmentAPI, resolver validation.ResolveWitness, testnet bool, schema *ops.Schema, contractID ops.ContractID) *validation.Status {
	rules := v.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	chk := &Check{
		Ctx:        ctx,
		C:          c,
		Resolver:   resolver,
		Testnet:    testnet,
		Schema:     schema,
		ContractID: contractID,
		Status:     validation.NewStatus(),
	}
	for _, r := range rules {
		if r.Apply != nil {
			r.Apply(chk)
		}
	}
	return chk.Status
}

// DefaultRules returns the structural rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{ID: RuleSchemaID, Apply: checkSchemaID},
		{ID: RuleNetwork, Apply: checkNetwork},
		{ID: RuleContractID, Apply: checkContractID},
		{ID: RuleOpContract, Apply: checkOpContracts},
		{ID: RuleMissingInput, Apply: checkInputs},
		{ID: RuleDoubleSpend, Apply: checkDoubleSpends},
		{ID: RuleInputMap, Apply: checkInputMaps},
		{ID: RuleRedeemed, Apply: checkRedeemed},
		{ID: RuleUnresolved, Apply: checkWitnesses},
	}
}

func checkSchemaID(c *Check) {
	if c.Schema == nil {
		c.Status.AddFailure(RuleSchemaID, "no schema supplied")
		return
	}
	if got, want := c.Schema.SchemaID(), c.C.Genesis().SchemaID; got != want {
		c.Status.AddFailure(RuleSchemaID, "schema id %s does not match genesis schema id %s", got, want)
	}
}

func checkNetwork(c *Check) {
	if g := c.C.Genesis(); g.Testnet != c.Testnet {
		c.Status.AddFailure(RuleNetwork, "genesis testnet=%t, validating for testnet=%t", g.Testnet, c.Testnet)
	}
}

func checkContractID(c *Check) {
	if got := c.C.Genesis().ContractID(); got != c.ContractID {
		c.Status.AddFailure(RuleContractID, "genesis defines contract %s, expected %s", got, c.ContractID)
	}
}

// transitions visits every bundled transition in bundle id order.
func transitions(c *Check, fn func(ops.BundleID, *ops.TransitionBundle, *ops.Transition)) {
	for _, bid := range c.C.BundleIDs() {
		b, ok := c.C.Bundle(bid)
		if !ok {
			continue
		}
		for i := range b.Transitions {
			fn(bid, b, &b.Transitions[i])
		}
	}
}

func checkOpContracts(c *Check) {
	transitions(c, func(_ ops.BundleID, _ *ops.TransitionBundle, t *ops.Transition) {
		if t.ContractID != c.ContractID {
			c.Status.AddFailure(RuleOpContract, "transition %s belongs to contract %s", t.ID(), t.ContractID)
		}
	})
	for _, x := range c.C.Extensions() {
		if x.ContractID != c.ContractID {
			c.Status.AddFailure(RuleOpContract, "extension %s belongs to contract %s", x.ID(), x.ContractID)
		}
	}
}

// hasOutput reports whether op has the numbered output of the given type.
func hasOutput(op ops.Operation, out ops.Opout) bool {
	n := 0
	for _, a := range op.Outputs() {
		if a.Type != out.Type {
			continue
		}
		if n == int(out.No) {
			return true
		}
		n++
	}
	return false
}

func checkInputs(c *Check) {
	transitions(c, func(_ ops.BundleID, _ *ops.TransitionBundle, t *ops.Transition) {
		for _, prev := range t.PrevOuts() {
			op, ok := c.C.Operation(prev.Op)
			if !ok {
				c.Status.AddFailure(RuleMissingInput, "transition %s spends unknown operation %s", t.ID(), prev.Op)
				continue
			}
			if !hasOutput(op, prev) {
				c.Status.AddFailure(RuleMissingInput, "transition %s spends missing output %s/%d/%d", t.ID(), prev.Op, prev.Type, prev.No)
			}
		}
	})
}

func checkDoubleSpends(c *Check) {
	spentBy := make(map[ops.Opout]ops.OpID)
	transitions(c, func(_ ops.BundleID, _ *ops.TransitionBundle, t *ops.Transition) {
		id := t.ID()
		for _, prev := range t.PrevOuts() {
			if other, ok := spentBy[prev]; ok && other != id {
				c.Status.AddFailure(RuleDoubleSpend, "output %s/%d/%d spent by both %s and %s", prev.Op, prev.Type, prev.No, other, id)
				continue
			}
			spentBy[prev] = id
		}
	})
}

func checkInputMaps(c *Check) {
	transitions(c, func(bid ops.BundleID, b *ops.TransitionBundle, t *ops.Transition) {
		if !b.Spends(t.ID()) {
			c.Status.AddFailure(RuleInputMap, "transition %s is not listed in the input map of bundle %s", t.ID(), bid)
		}
	})
}

func checkRedeemed(c *Check) {
	for _, x := range c.C.Extensions() {
		for _, r := range x.Redeemed {
			if _, ok := c.C.Operation(r.Op); !ok {
				c.Status.AddFailure(RuleRedeemed, "extension %s redeems valency %d of unknown operation %s", x.ID(), r.Valency, r.Op)
			}
		}
	}
}

func checkWitnesses(c *Check) {
	for _, bid := range c.C.BundleIDs() {
		wid, ok := c.C.WitnessForBundle(bid)
		if !ok {
			c.Status.AddFailure(RuleMissingWitness, "bundle %s has no witness", bid)
			continue
		}
		if c.Resolver == nil {
			c.Status.AddUnresolved(wid)
			continue
		}
		if _, err := c.Resolver.ResolvePubWitnessOrd(c.Ctx, wid); err != nil {
			c.Status.AddUnresolved(wid)
			c.Status.AddInfo(RuleUnresolved, "witness %s: %v", wid, err)
		}
	}
}
