package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"xdao.co/consign/keys"
)

func (e *env) cmdKey(args []string) int {
	if len(args) == 0 {
		printKeyUsage(e.errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return e.cmdKeyInit(args[1:])
	case "derive":
		return e.cmdKeyDerive(args[1:])
	case "list":
		return e.cmdKeyList(args[1:])
	case "export":
		return e.cmdKeyExport(args[1:])
	case "help", "-h", "--help":
		printKeyUsage(e.out)
		return 0
	default:
		fmt.Fprintf(e.errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(e.errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-consign key: local signer keys for content signatures")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-consign key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-consign key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-consign key list")
	fmt.Fprintln(w, "  xdao-consign key export --name <name> [--role <role>]")
}

func (e *env) keyStore() (*keys.KeyStore, bool) {
	ks, err := keys.OpenKeyStore(e.cfg.KeyDir)
	if err != nil {
		fmt.Fprintf(e.errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func (e *env) keyFlagSet(name string) *flag.FlagSet {
	fs := e.newFlagSet(name)
	fs.StringVar(&e.cfg.KeyDir, "key-dir", e.cfg.KeyDir, "Key store directory (default ~/.xdao/consign/keys)")
	return fs
}

func (e *env) cmdKeyInit(args []string) int {
	fs := e.keyFlagSet("key init")
	var name, seedHex string
	var force bool
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible runs)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if !e.parse(fs, args) {
		return 2
	}
	if name == "" {
		fmt.Fprintln(e.errOut, "missing --name")
		return 2
	}

	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(e.errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(e.errOut, "rand: %v\n", err)
			return 1
		}
	}

	ks, ok := e.keyStore()
	if !ok {
		return 1
	}
	signer, err := ks.InitRoot(name, seed, force)
	if err != nil {
		fmt.Fprintf(e.errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(e.out, "Created root key: %s\n", signer)
	return 0
}

func (e *env) cmdKeyDerive(args []string) int {
	fs := e.keyFlagSet("key derive")
	var from, role string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. issuer, auditor)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	if !e.parse(fs, args) {
		return 2
	}
	if from == "" {
		fmt.Fprintln(e.errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(e.errOut, "missing --role")
		return 2
	}
	ks, ok := e.keyStore()
	if !ok {
		return 1
	}
	signer, err := ks.DeriveRole(from, role, force)
	if err != nil {
		fmt.Fprintf(e.errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(e.out, "Created role key: %s\n", signer)
	return 0
}

func (e *env) cmdKeyExport(args []string) int {
	fs := e.keyFlagSet("key export")
	var name, role string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (exports the derived role key)")
	if !e.parse(fs, args) {
		return 2
	}
	if name == "" {
		fmt.Fprintln(e.errOut, "missing --name")
		return 2
	}
	ks, ok := e.keyStore()
	if !ok {
		return 1
	}
	priv, err := ks.PrivateKey(name, role)
	if err != nil {
		fmt.Fprintf(e.errOut, "export key: %v\n", err)
		return 1
	}
	signer, err := keys.SignerKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		fmt.Fprintf(e.errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(e.out, signer)
	return 0
}

func (e *env) cmdKeyList(args []string) int {
	fs := e.keyFlagSet("key list")
	if !e.parse(fs, args) {
		return 2
	}
	ks, ok := e.keyStore()
	if !ok {
		return 1
	}
	signers, err := ks.List()
	if err != nil {
		fmt.Fprintf(e.errOut, "list keys: %v\n", err)
		return 1
	}
	for _, s := range signers {
		fmt.Fprintf(e.out, "%s\n", s.Name)
		for _, r := range s.Roles {
			fmt.Fprintf(e.out, "  - %s\n", r)
		}
	}
	return 0
}
