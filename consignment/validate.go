package consignment

import (
	"context"
	"slices"

	"xdao.co/consign/commit"
	"xdao.co/consign/compliance"
	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// Warning codes added by the container-level checks.
const (
	WarnConsignmentType = "CSG-WRN-001"
	WarnIfaceMismatch   = "CSG-WRN-002"
	WarnTerminalBundle  = "CSG-WRN-003"
	WarnSignature       = "CSG-WRN-004"
)

// Options tune Validate.
type Options struct {
	// Mode Strict rejects consignments that produced any warning.
	Mode compliance.ComplianceMode
	// Signatures, when set, is called for every signed content id; an error
	// is recorded as a warning. When nil signatures are not checked.
	Signatures func(ops.ContentID, ops.ContentSigs) error
}

// ValidConsignment is a consignment together with the status of the
// validation run that accepted it.
type ValidConsignment struct {
	status      *validation.Status
	consignment *Consignment
}

var _ ConsignmentExt = (*ValidConsignment)(nil)

func (v *ValidConsignment) Status() *validation.Status  { return v.status }
func (v *ValidConsignment) Consignment() *Consignment   { return v.consignment }
func (v *ValidConsignment) Kind() ContainerKind         { return v.consignment.Kind() }
func (v *ValidConsignment) ContractID() ops.ContractID  { return v.consignment.ContractID() }
func (v *ValidConsignment) SchemaID() ops.SchemaID      { return v.consignment.SchemaID() }
func (v *ValidConsignment) Schema() *ops.Schema         { return v.consignment.Schema() }
func (v *ValidConsignment) Genesis() *ops.Genesis       { return v.consignment.Genesis() }
func (v *ValidConsignment) Extensions() []ops.Extension { return v.consignment.Extensions() }
func (v *ValidConsignment) ConsignmentID() ID           { return v.consignment.ConsignmentID() }

func (v *ValidConsignment) BundledWitnesses() []ops.BundledWitness {
	return v.consignment.BundledWitnesses()
}

func (v *ValidConsignment) Terminals() map[ops.BundleID]ops.SecretSeal {
	return v.consignment.Terminals()
}

// Split returns the status and the consignment.
func (v *ValidConsignment) Split() (*validation.Status, *Consignment) {
	return v.status, v.consignment
}

// Validate runs validator against the consignment and adds the container-level
// checks. On rejection the returned error is a *RejectedError carrying the
// status and the consignment.
func (c *Consignment) Validate(ctx context.Context, validator validation.Validator, resolver validation.ResolveWitness, testnet bool) (*ValidConsignment, error) {
	return c.ValidateWithOptions(ctx, validator, resolver, testnet, Options{})
}

func (c *Consignment) ValidateWithOptions(ctx context.Context, validator validation.Validator, resolver validation.ResolveWitness, testnet bool, opts Options) (*ValidConsignment, error) {
	if validator == nil {
		return nil, newError(KindValidation, "CSG-VAL-000", "no validator supplied")
	}
	idx := NewIndex(c)
	local := NewResolver(idx, resolver)

	status := validator.Validate(ctx, idx, local, testnet, c.Schema(), c.ContractID())
	if status == nil {
		status = validation.NewStatus()
	}

	if c.c.Transfer != (c.kind == KindTransfer) {
		status.AddWarning(WarnConsignmentType, "invalid consignment type")
	}

	for i := range c.c.Ifaces {
		p := &c.c.Ifaces[i]
		if !p.Consistent() {
			status.AddWarning(WarnIfaceMismatch, "implementation of %s references interface %s, carried interface is %s",
				p.Iface.Name, p.Impl.IfaceID, p.Iface.IfaceID())
		}
	}

	terminals := make([]ops.BundleID, 0, len(c.c.Terminals))
	for bid := range c.c.Terminals {
		terminals = append(terminals, bid)
	}
	slices.SortFunc(terminals, commit.Compare[ops.BundleID])
	for _, bid := range terminals {
		if _, ok := idx.Bundle(bid); !ok {
			status.AddWarning(WarnTerminalBundle, "terminal bundle %s is not present in the consignment", bid)
		}
	}

	if opts.Signatures != nil {
		ids := make([]ops.ContentID, 0, len(c.c.Signatures))
		for id := range c.c.Signatures {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, commit.Compare[ops.ContentID])
		for _, id := range ids {
			if err := opts.Signatures(id, c.c.Signatures[id]); err != nil {
				status.AddWarning(WarnSignature, "signatures over %s: %v", id, err)
			}
		}
	}

	if status.Validity() != validation.Valid {
		return nil, &RejectedError{Status: status, Consignment: c}
	}
	if opts.Mode == compliance.Strict && len(status.Warnings) > 0 {
		return nil, &RejectedError{Status: status, Consignment: c}
	}
	return &ValidConsignment{status: status, consignment: c}, nil
}
