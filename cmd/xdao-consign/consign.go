package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"xdao.co/consign/cidutil"
	"xdao.co/consign/compliance"
	"xdao.co/consign/consignment"
	"xdao.co/consign/keys"
	"xdao.co/consign/model"
	"xdao.co/consign/ops"
	"xdao.co/consign/resolver"
	"xdao.co/consign/validation"
	"xdao.co/consign/validation/basic"
)

func (e *env) loadConsignment(path string) (*consignment.Consignment, int) {
	b, err := e.readInput(path)
	if err != nil {
		fmt.Fprintf(e.errOut, "read consignment: %v\n", err)
		return nil, 1
	}
	c, err := consignment.Parse(b)
	if err != nil {
		fmt.Fprintf(e.errOut, "invalid consignment: %v\n", err)
		return nil, 1
	}
	return c, 0
}

func (e *env) cmdID(args []string) int {
	fs := e.newFlagSet("id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign id <file>")
		return 2
	}
	c, code := e.loadConsignment(fs.Arg(0))
	if c == nil {
		return code
	}
	_, _ = fmt.Fprintln(e.out, c.ConsignmentID())
	return 0
}

type inspectReport struct {
	ConsignmentID string   `json:"consignmentId"`
	Type          string   `json:"type"`
	Version       uint16   `json:"version"`
	ContractID    string   `json:"contractId"`
	SchemaID      string   `json:"schemaId"`
	SchemaName    string   `json:"schemaName"`
	ContentCID    string   `json:"contentCid"`
	Size          int      `json:"size"`
	Extensions    int      `json:"extensions"`
	Bundles       int      `json:"bundles"`
	Transitions   int      `json:"transitions"`
	Terminals     []string `json:"terminals"`
	Attachments   int      `json:"attachments"`
	AttachBytes   int      `json:"attachBytes"`
	Signed        int      `json:"signedContent"`
}

func (e *env) cmdInspect(args []string) int {
	fs := e.newFlagSet("inspect")
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign inspect [--json] <file>")
		return 2
	}
	c, code := e.loadConsignment(fs.Arg(0))
	if c == nil {
		return code
	}
	armored, err := c.Armor()
	if err != nil {
		fmt.Fprintf(e.errOut, "render: %v\n", err)
		return 1
	}

	r := inspectReport{
		ConsignmentID: c.ConsignmentID().String(),
		Type:          c.Kind().String(),
		Version:       c.Version(),
		ContractID:    c.ContractID().String(),
		SchemaID:      c.SchemaID().String(),
		SchemaName:    c.Schema().Name,
		ContentCID:    cidutil.CIDv1RawSHA256(armored),
		Size:          len(armored),
		Extensions:    len(c.Extensions()),
		Bundles:       len(c.BundledWitnesses()),
		Terminals:     []string{},
		Attachments:   len(c.Attachments()),
		Signed:        len(c.Signatures()),
	}
	for _, bw := range c.BundledWitnesses() {
		for _, a := range bw.Anchors {
			r.Transitions += len(a.Bundle.Transitions)
		}
	}
	for id := range c.Terminals() {
		r.Terminals = append(r.Terminals, id.String())
	}
	for _, data := range c.Attachments() {
		r.AttachBytes += len(data)
	}
	if asJSON {
		return e.writeJSON(r)
	}

	fmt.Fprintf(e.out, "Consignment: %s\n", r.ConsignmentID)
	fmt.Fprintf(e.out, "Type:        %s (version %d)\n", r.Type, r.Version)
	fmt.Fprintf(e.out, "Contract:    %s\n", r.ContractID)
	fmt.Fprintf(e.out, "Schema:      %s (%s)\n", r.SchemaID, r.SchemaName)
	fmt.Fprintf(e.out, "Content-CID: %s\n", r.ContentCID)
	fmt.Fprintf(e.out, "Size:        %s\n", humanize.Bytes(uint64(r.Size)))
	fmt.Fprintf(e.out, "Extensions:  %s\n", humanize.Comma(int64(r.Extensions)))
	fmt.Fprintf(e.out, "Bundles:     %s (%s transitions)\n", humanize.Comma(int64(r.Bundles)), humanize.Comma(int64(r.Transitions)))
	fmt.Fprintf(e.out, "Terminals:   %d\n", len(r.Terminals))
	fmt.Fprintf(e.out, "Attachments: %s (%s)\n", humanize.Comma(int64(r.Attachments)), humanize.Bytes(uint64(r.AttachBytes)))
	fmt.Fprintf(e.out, "Signed:      %d content ids\n", r.Signed)
	return 0
}

// resolverFor builds the witness resolver used by validate and import: the
// comma-separated witness tables consulted in order, retried on connection
// errors and cached for this run.
func (e *env) resolverFor(witnesses string) (validation.ResolveWitness, error) {
	var tables resolver.Multi
	for _, path := range strings.Split(witnesses, ",") {
		if path = strings.TrimSpace(path); path == "" {
			continue
		}
		table, err := resolver.LoadFile(path)
		if err != nil {
			return nil, err
		}
		tables.Resolvers = append(tables.Resolvers, table)
	}
	return resolver.NewCaching(resolver.Retrying{
		Inner:      tables,
		MaxTries:   e.cfg.ResolverTries,
		MaxElapsed: e.cfg.ResolverTimeout,
	}), nil
}

type validateFlags struct {
	witnesses string
	trust     stringList
	verify    bool
}

// ruleUnsignedContent is reported when a signer policy names content that
// carries no signatures.
const ruleUnsignedContent = "CLI-POL-001"

// validate runs the reference validator. It returns the validated
// consignment, or nil with the rejection status.
func (e *env) validate(c *consignment.Consignment, vf *validateFlags, res validation.ResolveWitness) (*consignment.ValidConsignment, *validation.Status, compliance.ComplianceMode, error) {
	mode, err := compliance.ParseMode(e.cfg.Compliance)
	if err != nil {
		return nil, nil, mode, model.NewError(model.ErrInvalidRequest, err.Error())
	}
	opts := consignment.Options{Mode: mode}
	var policy *keys.Policy
	switch {
	case e.cfg.Policy != "":
		if policy, err = keys.LoadPolicy(e.cfg.Policy); err != nil {
			return nil, nil, mode, model.NewError(model.ErrInvalidRequest, "--policy: "+err.Error())
		}
		opts.Signatures = policy.Checker(c.ContractID(), c.SchemaID())
	case vf.verify || len(vf.trust) > 0:
		v := keys.Verifier{}
		for _, k := range vf.trust {
			pub, err := keys.ParseSignerKey(k)
			if err != nil {
				return nil, nil, mode, model.NewError(model.ErrInvalidRequest, "--trust: "+err.Error())
			}
			v.Trusted = append(v.Trusted, pub)
		}
		opts.Signatures = v.Check
	}

	valid, err := c.ValidateWithOptions(e.ctx, basic.Validator{}, res, e.cfg.Testnet, opts)
	var status *validation.Status
	switch {
	case err == nil:
		status = valid.Status()
	default:
		rej, ok := consignment.AsRejected(err)
		if !ok {
			return nil, nil, mode, err
		}
		status = rej.Status
	}
	if policy != nil {
		for _, r := range policy.Unsigned(c.Signatures(), c.ContractID(), c.SchemaID()) {
			status.AddFailure(ruleUnsignedContent, "policy requires %d %s signature(s) over the %s, found none", r.Quorum, r.Role, r.Content)
			valid = nil
		}
	}
	return valid, status, mode, nil
}

func (e *env) cmdValidate(args []string) int {
	fs := e.newFlagSet("validate")
	var vf validateFlags
	var asJSON bool
	fs.BoolVar(&e.cfg.Testnet, "testnet", e.cfg.Testnet, "Validate against the test network")
	fs.StringVar(&e.cfg.Compliance, "mode", e.cfg.Compliance, "Compliance mode: permissive or strict")
	fs.StringVar(&vf.witnesses, "witnesses", e.cfg.Witnesses, "Witness tables (JSON, comma-separated, consulted in order)")
	fs.Var(&vf.trust, "trust", "Trusted signer key ed25519:<base64> (repeatable); enables signature checks")
	fs.BoolVar(&vf.verify, "verify-sigs", false, "Verify content signatures without a trust list")
	fs.StringVar(&e.cfg.Policy, "policy", e.cfg.Policy, "Signer policy file (overrides --trust)")
	fs.BoolVar(&asJSON, "json", false, "Print a JSON report")
	if !e.parse(fs, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign validate [flags] <file>")
		return 2
	}
	c, code := e.loadConsignment(fs.Arg(0))
	if c == nil {
		return code
	}

	res, err := e.resolverFor(vf.witnesses)
	if err != nil {
		fmt.Fprintf(e.errOut, "witnesses: %v\n", err)
		return 1
	}
	valid, status, mode, err := e.validate(c, &vf, res)
	report := model.NewValidationReport(c, status, mode)
	if valid == nil && err == nil && status != nil && status.Validity() == validation.Valid {
		// strict mode rejected the warnings
		report.Validity = "rejected"
	}
	if err != nil {
		report.Error = model.FromError(err)
	}
	if asJSON {
		if code := e.writeJSON(report); code != 0 {
			return code
		}
	} else {
		printValidation(e, report)
	}
	if err != nil || valid == nil {
		return 1
	}
	return 0
}

func printValidation(e *env, r model.ValidationReport) {
	if r.Error != nil {
		fmt.Fprintf(e.errOut, "error: %s\n", r.Error)
		return
	}
	fmt.Fprintf(e.out, "%s %s: %s\n", r.Type, r.ConsignmentID, r.Validity)
	for _, d := range r.Failures {
		fmt.Fprintf(e.out, "  failure %s: %s\n", d.Code, d.Message)
	}
	for _, d := range r.Warnings {
		fmt.Fprintf(e.out, "  warning %s: %s\n", d.Code, d.Message)
	}
	for _, d := range r.Info {
		fmt.Fprintf(e.out, "  info %s: %s\n", d.Code, d.Message)
	}
	for _, id := range r.UnresolvedTxids {
		fmt.Fprintf(e.out, "  unresolved %s\n", id)
	}
}

func (e *env) cmdSign(args []string) int {
	fs := e.newFlagSet("sign")
	var signer, role, content, hashAlg string
	fs.StringVar(&signer, "signer", "", "Stored key name (from 'xdao-consign key init')")
	fs.StringVar(&role, "role", "", "Use a derived role key of the signer")
	fs.StringVar(&content, "content", "contract", "Content to sign: contract or schema")
	fs.StringVar(&hashAlg, "hash", keys.HashSHA256, "Digest: sha256, sha512 or sha3-256")
	fs.StringVar(&e.cfg.KeyDir, "key-dir", e.cfg.KeyDir, "Key store directory (default ~/.xdao/consign/keys)")
	if !e.parse(fs, args) {
		return 2
	}
	if signer == "" {
		fmt.Fprintln(e.errOut, "missing --signer")
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign sign --signer <name> [--role <role>] <file>")
		return 2
	}
	c, code := e.loadConsignment(fs.Arg(0))
	if c == nil {
		return code
	}

	var id ops.ContentID
	switch content {
	case "contract":
		id = ops.ContentID(c.ContractID())
	case "schema":
		id = ops.ContentID(c.SchemaID())
	default:
		fmt.Fprintf(e.errOut, "invalid --content %q (want contract or schema)\n", content)
		return 2
	}

	ks, err := keys.OpenKeyStore(e.cfg.KeyDir)
	if err != nil {
		fmt.Fprintf(e.errOut, "keys: %v\n", err)
		return 1
	}
	priv, err := ks.PrivateKey(signer, role)
	if err != nil {
		fmt.Fprintf(e.errOut, "load key: %v\n", err)
		return 1
	}
	sig, err := keys.SignEd25519(id, hashAlg, priv)
	if err != nil {
		fmt.Fprintf(e.errOut, "sign: %v\n", err)
		return 2
	}

	contents := c.Contents()
	if contents.Signatures == nil {
		contents.Signatures = make(map[ops.ContentID]ops.ContentSigs)
	}
	contents.Signatures[id] = append(contents.Signatures[id], sig)
	signed, err := rebuild(c.Kind(), contents)
	if err != nil {
		fmt.Fprintf(e.errOut, "sign: %v\n", err)
		return 1
	}
	armored, err := signed.Armor()
	if err != nil {
		fmt.Fprintf(e.errOut, "render: %v\n", err)
		return 1
	}
	fmt.Fprintf(e.errOut, "Consignment-ID: %s\n", signed.ConsignmentID())
	_, _ = e.out.Write(armored)
	return 0
}

func rebuild(kind consignment.ContainerKind, c consignment.Contents) (*consignment.Consignment, error) {
	if kind == consignment.KindTransfer {
		return consignment.NewTransfer(c)
	}
	return consignment.NewContract(c)
}
