package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"xdao.co/consign/consignment"
	"xdao.co/consign/model"
	"xdao.co/consign/storage"
	"xdao.co/consign/storage/bundle"
	"xdao.co/consign/storage/grpcstore"
	"xdao.co/consign/storage/registry"
	"xdao.co/consign/storage/storeconfig"
)

// storeFlags binds --backend and every registered backend's flags.
func (e *env) storeFlags(name string, usage registry.Usage) *flag.FlagSet {
	fs := e.newFlagSet(name)
	fs.StringVar(&e.cfg.Backend, "backend", e.cfg.Backend, "Store backend name")
	fs.StringVar(&e.cfg.StoreConfig, "store-config", e.cfg.StoreConfig, "JSON file opening several backends (overrides --backend)")
	registry.RegisterFlags(fs, usage)
	return fs
}

func (e *env) openStore(usage registry.Usage) (storage.Store, func(), bool) {
	var (
		s       storage.Store
		closeFn func() error
		err     error
	)
	if e.cfg.StoreConfig != "" {
		var sc storeconfig.Config
		if sc, err = storeconfig.LoadFile(e.cfg.StoreConfig); err == nil {
			s, closeFn, err = sc.Open(usage, "")
		}
	} else {
		s, closeFn, err = registry.Open(e.cfg.Backend, usage)
	}
	if err != nil {
		fmt.Fprintf(e.errOut, "store: %v\n", err)
		return nil, nil, false
	}
	return s, func() {
		if closeFn != nil {
			_ = closeFn()
		}
	}, true
}

func (e *env) cmdStore(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(e.errOut, "usage: xdao-consign store put|get|has|backends [flags] <file|id>")
		return 2
	}
	sub := args[0]
	if sub == "backends" {
		for _, b := range registry.List(registry.UsageCLI) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(e.out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(e.out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}
	if sub != "put" && sub != "get" && sub != "has" {
		fmt.Fprintf(e.errOut, "unknown store subcommand: %s\n", sub)
		return 2
	}

	fs := e.storeFlags("store "+sub, registry.UsageCLI)
	if !e.parse(fs, args[1:]) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(e.errOut, "usage: xdao-consign store %s [flags] <arg>\n", sub)
		return 2
	}
	s, closeFn, ok := e.openStore(registry.UsageCLI)
	if !ok {
		return 2
	}
	defer closeFn()

	if sub == "put" {
		b, err := e.readInput(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(e.errOut, "read consignment: %v\n", err)
			return 1
		}
		id, err := s.Put(b)
		if err != nil {
			fmt.Fprintf(e.errOut, "put: %v\n", model.FromError(err))
			return 1
		}
		_, _ = fmt.Fprintln(e.out, id)
		return 0
	}

	id, err := consignment.ParseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.errOut, "invalid id: %v\n", err)
		return 2
	}
	if sub == "has" {
		if !s.Has(id) {
			_, _ = fmt.Fprintln(e.out, "false")
			return 1
		}
		_, _ = fmt.Fprintln(e.out, "true")
		return 0
	}
	b, err := s.Get(id)
	if err != nil {
		fmt.Fprintf(e.errOut, "get: %v\n", model.FromError(err))
		return 1
	}
	_, _ = e.out.Write(b)
	return 0
}

// lister is implemented by stores that can enumerate their contents.
type lister interface {
	IDs() ([]consignment.ID, error)
}

func (e *env) cmdBundle(args []string) int {
	if len(args) == 0 || (args[0] != "export" && args[0] != "import") {
		fmt.Fprintln(e.errOut, "usage: xdao-consign bundle export|import [flags] ...")
		return 2
	}
	sub := args[0]
	fs := e.storeFlags("bundle "+sub, registry.UsageCLI)
	var outPath string
	var index, all, ignoreUnknown bool
	var labels stringList
	if sub == "export" {
		fs.StringVar(&outPath, "out", "", "Output tar path (- for stdout)")
		fs.BoolVar(&index, "index", true, "Write index.json")
		fs.BoolVar(&all, "all", false, "Export every consignment the backend can list")
		fs.Var(&labels, "label", "Index label as name=<id> (repeatable)")
	} else {
		fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip entries that are not consignments")
	}
	if !e.parse(fs, args[1:]) {
		return 2
	}
	s, closeFn, ok := e.openStore(registry.UsageCLI)
	if !ok {
		return 2
	}
	defer closeFn()

	if sub == "import" {
		if fs.NArg() != 1 {
			fmt.Fprintln(e.errOut, "usage: xdao-consign bundle import [flags] <file>")
			return 2
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(e.errOut, "open: %v\n", err)
			return 1
		}
		defer f.Close()
		ids, err := bundle.ImportWithOptions(f, s, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
		if err != nil {
			fmt.Fprintf(e.errOut, "import: %v\n", err)
			return 1
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(e.out, id)
		}
		return 0
	}

	if outPath == "" {
		fmt.Fprintln(e.errOut, "missing --out")
		return 2
	}
	var ids []consignment.ID
	for _, arg := range fs.Args() {
		id, err := consignment.ParseID(arg)
		if err != nil {
			fmt.Fprintf(e.errOut, "invalid id: %v\n", err)
			return 2
		}
		ids = append(ids, id)
	}
	if all {
		l, ok := s.(lister)
		if !ok {
			fmt.Fprintf(e.errOut, "backend %s cannot list its contents\n", e.cfg.Backend)
			return 2
		}
		listed, err := l.IDs()
		if err != nil {
			fmt.Fprintf(e.errOut, "list: %v\n", err)
			return 1
		}
		ids = append(ids, listed...)
	}
	if len(ids) == 0 {
		fmt.Fprintln(e.errOut, "nothing to export: pass ids or --all")
		return 2
	}
	opts := bundle.ExportOptions{IncludeIndex: index}
	for _, l := range labels {
		name, idText, ok := strings.Cut(l, "=")
		if !ok || name == "" {
			fmt.Fprintf(e.errOut, "invalid --label %q (want name=<id>)\n", l)
			return 2
		}
		id, err := consignment.ParseID(idText)
		if err != nil {
			fmt.Fprintf(e.errOut, "invalid --label id: %v\n", err)
			return 2
		}
		if opts.Labels == nil {
			opts.Labels = make(map[string]consignment.ID)
		}
		opts.Labels[name] = id
	}

	out := e.out
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(e.errOut, "create: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	if err := bundle.Export(out, s, ids, opts); err != nil {
		fmt.Fprintf(e.errOut, "export: %v\n", model.FromError(err))
		return 1
	}
	return 0
}

func (e *env) cmdServeStore(args []string) int {
	fs := e.storeFlags("serve-store", registry.UsageDaemon)
	var listBackends bool
	fs.StringVar(&e.cfg.Listen, "listen", e.cfg.Listen, "Listen address")
	fs.BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	if !e.parse(fs, args) {
		return 2
	}
	if listBackends {
		for _, n := range registry.Names(registry.UsageDaemon) {
			_, _ = fmt.Fprintln(e.out, n)
		}
		return 0
	}

	s, closeFn, ok := e.openStore(registry.UsageDaemon)
	if !ok {
		return 2
	}
	defer closeFn()

	lis, err := net.Listen("tcp", e.cfg.Listen)
	if err != nil {
		fmt.Fprintln(e.errOut, err)
		return 1
	}
	defer lis.Close()

	srv := grpcstore.NewServer(s)
	ctx, stop := signal.NotifyContext(e.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	fmt.Fprintf(e.errOut, "xdao-consign serve-store listening on %s (backend=%s)\n", lis.Addr().String(), e.cfg.Backend)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, net.ErrClosed) {
		fmt.Fprintln(e.errOut, err)
		return 1
	}
	return 0
}
