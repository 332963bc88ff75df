package localfs

import (
	"flag"
	"fmt"

	"xdao.co/consign/storage"
	"xdao.co/consign/storage/registry"
)

var flagDir string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem consignment store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "localfs-dir", "", "Consignment store directory (for --backend=localfs)")
		},
		Open: func() (storage.Store, func() error, error) {
			if flagDir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			s, err := New(flagDir)
			return s, nil, err
		},
	})
}
