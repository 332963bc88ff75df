package model

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"xdao.co/consign/compliance"
	"xdao.co/consign/consignment"
	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/validation"
)

func diagnostics(entries []validation.Entry) []Diagnostic {
	out := make([]Diagnostic, 0, len(entries))
	for _, e := range entries {
		out = append(out, Diagnostic{Code: e.Code, Message: e.Message})
	}
	return out
}

// NewValidationReport projects a validation status. A nil status yields a
// report with an empty verdict; callers set Error for failed runs.
func NewValidationReport(c *consignment.Consignment, status *validation.Status, mode compliance.ComplianceMode) ValidationReport {
	r := ValidationReport{
		ConsignmentID:   c.ConsignmentID().String(),
		Type:            c.Kind().String(),
		ContractID:      c.ContractID().String(),
		SchemaID:        c.SchemaID().String(),
		Compliance:      ComplianceMode(mode.String()),
		Failures:        []Diagnostic{},
		Warnings:        []Diagnostic{},
		Info:            []Diagnostic{},
		UnresolvedTxids: []string{},
	}
	if status == nil {
		return r
	}
	r.Validity = status.Validity().String()
	r.Failures = diagnostics(status.Failures)
	r.Warnings = diagnostics(status.Warnings)
	r.Info = diagnostics(status.Info)
	for _, id := range status.UnresolvedTxids {
		r.UnresolvedTxids = append(r.UnresolvedTxids, id.String())
	}
	return r
}

func witness(o ops.WitnessOrd) *Witness {
	w := &Witness{ID: o.Witness.String(), Status: o.Ord.Kind.String()}
	if o.Ord.IsMined() {
		w.Height = o.Ord.Pos.Height
		w.Timestamp = o.Ord.Pos.Timestamp
	}
	return w
}

func sealString(s ops.AssignSeal) string {
	if s.Revealed == nil {
		return s.Secret().String()
	}
	r := s.Revealed
	return string(r.Method) + ":" + r.Txid.String() + ":" + strconv.FormatUint(uint64(r.Vout), 10)
}

func output(a persistence.OutputAssignment) Output {
	o := Output{
		Op:   a.Opout.Op.String(),
		Type: uint16(a.Opout.Type),
		No:   a.Opout.No,
		Kind: a.State.Kind.String(),
		Seal: sealString(a.Seal),
	}
	switch a.State.Kind {
	case persistence.PersistedAmount:
		amount := a.State.Amount
		o.Amount = &amount
	case persistence.PersistedData:
		o.Data = append([]byte(nil), a.State.Data...)
	case persistence.PersistedAttachment:
		o.Attach = a.State.Attach.String()
		o.MediaType = a.State.MediaType
	}
	if a.Witness != nil {
		o.Witness = witness(*a.Witness)
	}
	return o
}

func outputs(seq iter.Seq[persistence.OutputAssignment]) []Output {
	out := []Output{}
	for a := range seq {
		out = append(out, output(a))
	}
	return out
}

func NewStateReport(st persistence.ContractStateRead) StateReport {
	return StateReport{
		ContractID: st.ContractID().String(),
		SchemaID:   st.SchemaID().String(),
		Rights:     outputs(st.RightsAll()),
		Fungible:   outputs(st.FungibleAll()),
		Data:       outputs(st.DataAll()),
		Attach:     outputs(st.AttachAll()),
	}
}

// NewWitnessUpdateReport lists updates and failures ordered by witness id.
func NewWitnessUpdateReport(res persistence.UpdateRes) WitnessUpdateReport {
	r := WitnessUpdateReport{Updated: []Witness{}, Failed: []WitnessFailure{}}
	for _, ord := range res.Succeeded {
		r.Updated = append(r.Updated, *witness(ord))
	}
	for id, msg := range res.Failed {
		r.Failed = append(r.Failed, WitnessFailure{ID: id.String(), Error: msg})
	}
	slices.SortFunc(r.Updated, func(a, b Witness) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(r.Failed, func(a, b WitnessFailure) int { return strings.Compare(a.ID, b.ID) })
	return r
}
