package storeconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"xdao.co/consign/storage"
	"xdao.co/consign/storage/localfs"
	"xdao.co/consign/storage/registry"
	"xdao.co/consign/storage/storeconfig"
	"xdao.co/consign/storage/testkit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stores.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileValidates(t *testing.T) {
	cases := map[string]string{
		"no backends":  `{"backends": []}`,
		"no name":      `{"backends": [{"config": {}}]}`,
		"duplicate id": `{"backends": [{"name": "localfs"}, {"name": "localfs"}]}`,
		"bad policy":   `{"write_policy": "some", "backends": [{"name": "localfs"}]}`,
		"not json":     `{`,
	}
	for name, body := range cases {
		if _, err := storeconfig.LoadFile(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := storeconfig.LoadFile(""); err == nil {
		t.Fatalf("empty path: expected error")
	}
}

func TestOpenSingleBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := storeconfig.Config{Backends: []storeconfig.BackendConfig{
		{Name: "localfs", Config: map[string]string{"localfs-dir": dir}},
	}}
	s, closeFn, err := cfg.Open(registry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*localfs.Store); !ok {
		t.Fatalf("single backend store = %T, want *localfs.Store", s)
	}
}

func TestOpenRejectsUnknownKey(t *testing.T) {
	cfg := storeconfig.Config{Backends: []storeconfig.BackendConfig{
		{Name: "localfs", Config: map[string]string{"localfs-path": "/tmp"}},
	}}
	if _, _, err := cfg.Open(registry.UsageCLI, ""); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestOpenWritePolicies(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	backends := []storeconfig.BackendConfig{
		{Name: "localfs", ID: "a", Config: map[string]string{"localfs-dir": a}},
		{Name: "localfs", ID: "b", Config: map[string]string{"localfs-dir": b}},
	}
	_, sample := testkit.Sample(t, "storeconfig")

	first := storeconfig.Config{Backends: backends}
	s, closeFn, err := first.Open(registry.UsageCLI, "b")
	if err != nil {
		t.Fatalf("Open(first): %v", err)
	}
	defer closeFn()
	if _, ok := s.(storage.MultiStore); !ok {
		t.Fatalf("first policy store = %T", s)
	}
	id, err := s.Put(sample)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	sa, _ := localfs.New(a)
	sb, _ := localfs.New(b)
	if sa.Has(id) || !sb.Has(id) {
		t.Fatalf("write went to the wrong backend: a=%v b=%v", sa.Has(id), sb.Has(id))
	}

	all := storeconfig.Config{WritePolicy: "all", Backends: backends}
	s, closeAll, err := all.Open(registry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open(all): %v", err)
	}
	defer closeAll()
	if _, err := s.Put(sample); err != nil {
		t.Fatalf("Put(all): %v", err)
	}
	if !sa.Has(id) || !sb.Has(id) {
		t.Fatalf("replicated write missing: a=%v b=%v", sa.Has(id), sb.Has(id))
	}

	if _, _, err := first.Open(registry.UsageCLI, "c"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}
