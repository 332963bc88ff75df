package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/consign/internal/config"
	"xdao.co/consign/internal/otel"

	_ "xdao.co/consign/storage/localfs"
)

func main() {
	code := 0
	err := otel.Run(context.Background(), "xdao-consign", func(ctx context.Context) error {
		code = run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// env carries the per-invocation streams and environment defaults.
type env struct {
	ctx    context.Context
	cfg    config.Config
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}
	e := &env{ctx: ctx, cfg: cfg, in: in, out: out, errOut: errOut}

	switch args[0] {
	case "id":
		return e.cmdID(args[1:])
	case "inspect":
		return e.cmdInspect(args[1:])
	case "validate":
		return e.cmdValidate(args[1:])
	case "sign":
		return e.cmdSign(args[1:])
	case "import":
		return e.cmdImport(args[1:])
	case "state":
		return e.cmdState(args[1:])
	case "witnesses":
		return e.cmdWitnesses(args[1:])
	case "key":
		return e.cmdKey(args[1:])
	case "store":
		return e.cmdStore(args[1:])
	case "bundle":
		return e.cmdBundle(args[1:])
	case "serve-store":
		return e.cmdServeStore(args[1:])
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-consign: consignment validation and state CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-consign id <file>")
	fmt.Fprintln(w, "  xdao-consign inspect [--json] <file>")
	fmt.Fprintln(w, "  xdao-consign validate [--testnet] [--mode permissive|strict] [--witnesses <file>] [--trust <key> ... | --policy <file>] [--json] <file>")
	fmt.Fprintln(w, "  xdao-consign sign --signer <name> [--role <role>] [--content contract|schema] <file>")
	fmt.Fprintln(w, "  xdao-consign import --db <path> [--witnesses <file>] [--testnet] [--mode ...] <file>")
	fmt.Fprintln(w, "  xdao-consign state --db <path> --contract <id> [--json]")
	fmt.Fprintln(w, "  xdao-consign witnesses update --db <path> --witnesses <file> [--after-height <n>] [--json]")
	fmt.Fprintln(w, "  xdao-consign key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-consign key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  xdao-consign key list")
	fmt.Fprintln(w, "  xdao-consign store put|get|has [--backend <name>] [backend flags] <file|id>")
	fmt.Fprintln(w, "  xdao-consign bundle export [--backend <name>] --out <file> [--index] <id> ...")
	fmt.Fprintln(w, "  xdao-consign bundle import [--backend <name>] <file>")
	fmt.Fprintln(w, "  xdao-consign serve-store [--listen <addr>] [--backend <name>] [backend flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <file> may be - for stdin")
	fmt.Fprintln(w, "  - defaults come from XDAO_CONSIGN_* environment variables; flags override them")
	fmt.Fprintln(w, "  - the witnesses file is JSON: {\"witnesses\":[{\"id\":\"<hex>\",\"status\":\"mined\",\"height\":1,\"timestamp\":2}]}")
	fmt.Fprintln(w, "  - --policy reads a signer policy (-----BEGIN XDAO SIGNER POLICY-----) with trusted keys, roles and quorums")
	fmt.Fprintln(w, "  - tracing is exported when XDAO_CONSIGN_OTEL_ENDPOINT is set")
}

// newFlagSet returns a flag set that reports errors to errOut.
func (e *env) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	return fs
}

// parse loads environment defaults and then flags.
func (e *env) parse(fs *flag.FlagSet, args []string) bool {
	return config.ParseConfigFromArgs(&e.cfg, fs, args) == nil
}

func (e *env) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(e.in)
	}
	return os.ReadFile(path)
}

func (e *env) writeJSON(v any) int {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(e.errOut, "encode: %v\n", err)
		return 1
	}
	return 0
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
