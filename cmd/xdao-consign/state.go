package main

import (
	"fmt"

	"xdao.co/consign/model"
	"xdao.co/consign/ops"
	"xdao.co/consign/persistence"
	"xdao.co/consign/persistence/sqlitestate"
)

func (e *env) openState() (*persistence.State, func(), bool) {
	if e.cfg.DB == "" {
		fmt.Fprintln(e.errOut, "missing --db (or XDAO_CONSIGN_DB)")
		return nil, nil, false
	}
	db, err := sqlitestate.Open(e.cfg.DB)
	if err != nil {
		fmt.Fprintf(e.errOut, "open state: %v\n", err)
		return nil, nil, false
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(e.errOut, "close state: %v\n", err)
		}
	}
	return persistence.NewState(db), closeFn, true
}

func (e *env) cmdImport(args []string) int {
	fs := e.newFlagSet("import")
	var vf validateFlags
	fs.StringVar(&e.cfg.DB, "db", e.cfg.DB, "State database path (sqlite)")
	fs.BoolVar(&e.cfg.Testnet, "testnet", e.cfg.Testnet, "Validate against the test network")
	fs.StringVar(&e.cfg.Compliance, "mode", e.cfg.Compliance, "Compliance mode: permissive or strict")
	fs.StringVar(&vf.witnesses, "witnesses", e.cfg.Witnesses, "Witness tables (JSON, comma-separated, consulted in order)")
	fs.Var(&vf.trust, "trust", "Trusted signer key ed25519:<base64> (repeatable)")
	fs.StringVar(&e.cfg.Policy, "policy", e.cfg.Policy, "Signer policy file (overrides --trust)")
	if !e.parse(fs, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign import --db <path> [flags] <file>")
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
	valid, status, _, err := e.validate(c, &vf, res)
	if err != nil {
		fmt.Fprintf(e.errOut, "validate: %v\n", err)
		return 1
	}
	if valid == nil {
		fmt.Fprintf(e.errOut, "consignment rejected: %s\n", status.Validity())
		for _, f := range status.Failures {
			fmt.Fprintf(e.errOut, "  %s\n", f)
		}
		return 1
	}

	state, closeFn, ok := e.openState()
	if !ok {
		return 1
	}
	defer closeFn()

	if err := state.UpdateFromConsignment(e.ctx, valid, res); err != nil {
		fmt.Fprintf(e.errOut, "import: %v\n", model.FromError(err))
		return 1
	}
	fmt.Fprintf(e.out, "Imported %s into contract %s\n", valid.ConsignmentID(), valid.ContractID())
	return 0
}

func (e *env) cmdState(args []string) int {
	fs := e.newFlagSet("state")
	var contract string
	var asJSON bool
	fs.StringVar(&e.cfg.DB, "db", e.cfg.DB, "State database path (sqlite)")
	fs.StringVar(&contract, "contract", "", "Contract id")
	fs.BoolVar(&asJSON, "json", false, "Print JSON")
	if !e.parse(fs, args) {
		return 2
	}
	if contract == "" {
		fmt.Fprintln(e.errOut, "missing --contract")
		return 2
	}
	id, err := ops.ParseContractID(contract)
	if err != nil {
		fmt.Fprintf(e.errOut, "invalid --contract: %v\n", err)
		return 2
	}

	state, closeFn, ok := e.openState()
	if !ok {
		return 1
	}
	defer closeFn()

	st, err := state.ContractState(e.ctx, id)
	if err != nil {
		fmt.Fprintf(e.errOut, "state: %v\n", model.FromError(err))
		return 1
	}
	report := model.NewStateReport(st)
	if asJSON {
		return e.writeJSON(report)
	}
	fmt.Fprintf(e.out, "Contract: %s\n", report.ContractID)
	fmt.Fprintf(e.out, "Schema:   %s\n", report.SchemaID)
	for _, group := range []struct {
		name string
		outs []model.Output
	}{
		{"rights", report.Rights},
		{"fungible", report.Fungible},
		{"data", report.Data},
		{"attach", report.Attach},
	} {
		for _, o := range group.outs {
			fmt.Fprintf(e.out, "%-8s %s/%d/%d %s", group.name, o.Op, o.Type, o.No, o.Seal)
			if o.Amount != nil {
				fmt.Fprintf(e.out, " amount=%d", *o.Amount)
			}
			if o.Witness != nil {
				fmt.Fprintf(e.out, " witness=%s (%s)", o.Witness.ID, o.Witness.Status)
			}
			fmt.Fprintln(e.out)
		}
	}
	return 0
}

func (e *env) cmdWitnesses(args []string) int {
	if len(args) == 0 || args[0] != "update" {
		fmt.Fprintln(e.errOut, "usage: xdao-consign witnesses update --db <path> --witnesses <file> [--after-height <n>] [--json]")
		return 2
	}
	fs := e.newFlagSet("witnesses update")
	var witnesses string
	var afterHeight uint
	var asJSON bool
	fs.StringVar(&e.cfg.DB, "db", e.cfg.DB, "State database path (sqlite)")
	fs.StringVar(&witnesses, "witnesses", e.cfg.Witnesses, "Witness tables (JSON, comma-separated, consulted in order)")
	fs.UintVar(&afterHeight, "after-height", 0, "Also re-resolve witnesses mined at or after this height")
	fs.BoolVar(&asJSON, "json", false, "Print JSON")
	if !e.parse(fs, args[1:]) {
		return 2
	}
	if witnesses == "" {
		fmt.Fprintln(e.errOut, "missing --witnesses")
		return 2
	}

	res, err := e.resolverFor(witnesses)
	if err != nil {
		fmt.Fprintf(e.errOut, "witnesses: %v\n", err)
		return 1
	}
	state, closeFn, ok := e.openState()
	if !ok {
		return 1
	}
	defer closeFn()

	upd, err := state.UpdateWitnesses(e.ctx, res, uint32(afterHeight))
	if err != nil {
		fmt.Fprintf(e.errOut, "update: %v\n", model.FromError(err))
		return 1
	}
	report := model.NewWitnessUpdateReport(upd)
	if asJSON {
		return e.writeJSON(report)
	}
	for _, w := range report.Updated {
		fmt.Fprintf(e.out, "updated %s: %s\n", w.ID, w.Status)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(e.out, "failed  %s: %s\n", f.ID, f.Error)
	}
	return 0
}
