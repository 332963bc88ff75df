// Package storeconfig opens one or more registry backends from a JSON file.
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"xdao.co/consign/storage"
	"xdao.co/consign/storage/registry"
)

// Config describes how to open one or more store backends via registry.
// Callers still link the backends they need with blank imports.
//
// WritePolicy values:
//   - "first" (default): write only to the first backend; reads fall back in order
//   - "all": write to all backends and require id equality (see storage.ReplicatingStore)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "backends": [
//	    {"name": "localfs", "id": "primary", "config": {"localfs-dir": "/var/lib/consign/a"}},
//	    {"name": "grpc", "config": {"grpc-target": "10.0.0.2:7420", "grpc-timeout": "5s"}}
//	  ]
//	}
//
// Config keys are the backend's flag names without dashes.
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the registry backend to open (e.g. "localfs", "grpc").
	Name string `json:"name"`
	// ID is an optional alias used in ReplicatingStore results. Name is used
	// when empty.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("storeconfig: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("storeconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a store per config. A non-empty preferred names the backend
// (by name or id) moved to the front, so it takes the writes under "first".
func (c Config) Open(usage registry.Usage, preferred string) (storage.Store, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred || ordered[i].ID == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("storeconfig: preferred backend %q not in config", preferred)
		}
		b := ordered[idx]
		copy(ordered[1:idx+1], ordered[:idx])
		ordered[0] = b
	}

	named := make([]storage.NamedStore, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	for _, b := range ordered {
		s, closeFn, err := registry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.WritePolicy == "all" {
		return storage.ReplicatingStore{Backends: named}, closeAll, nil
	}
	stores := make([]storage.Store, 0, len(named))
	for _, n := range named {
		stores = append(stores, n.Store)
	}
	return storage.MultiStore{Stores: stores}, closeAll, nil
}
