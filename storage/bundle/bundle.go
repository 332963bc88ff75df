// Package bundle moves consignments between stores as deterministic TAR
// archives.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"xdao.co/consign/consignment"
	"xdao.co/consign/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const entryPrefix = "consignments/"

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to ids.
	Labels map[string]consignment.ID
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the given consignments.
//
// Entry order is lexicographic and TAR headers are normalized, so the same
// set of ids always yields the same bytes. Every exported consignment is
// checked against its id.
func Export(w io.Writer, store storage.Store, ids []consignment.ID, opts ExportOptions) (err error) {
	if store == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]consignment.ID, len(ids))
	for _, id := range ids {
		if !storage.Defined(id) {
			return storage.ErrInvalidID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	slices.Sort(names)

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	entries := make([]indexEntry, 0, len(names))
	for _, name := range names {
		id := uniq[name]
		b, err := store.Get(id)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", name, err)
		}
		c, err := consignment.Parse(b)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", name, err)
		}
		if c.ConsignmentID() != id {
			return storage.ErrIDMismatch
		}
		if err := writeFile(tw, entryPrefix+name, b); err != nil {
			return err
		}
		entries = append(entries, indexEntry{
			ID:       name,
			Type:     c.Kind().String(),
			Contract: c.ContractID().String(),
			Size:     len(b),
		})
	}

	if !opts.IncludeIndex {
		return nil
	}
	idx := indexJSON{Version: FormatVersion, Consignments: entries}
	if len(opts.Labels) > 0 {
		keys := make([]string, 0, len(opts.Labels))
		for k := range opts.Labels {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if k == "" {
				return fmt.Errorf("bundle: empty label key")
			}
			v := opts.Labels[k]
			if !storage.Defined(v) {
				return storage.ErrInvalidID
			}
			idx.Labels = append(idx.Labels, indexLabel{Name: k, ID: v.String()})
		}
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeFile(tw, "index.json", append(b, '\n'))
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every consignment in store,
// returning the imported ids in archive order. Unknown entries are an error.
func Import(r io.Reader, store storage.Store) ([]consignment.ID, error) {
	return ImportWithOptions(r, store, ImportOptions{})
}

// ImportWithOptions is Import with options. Each entry must parse, and its
// computed id must match the id in its name.
func ImportWithOptions(r io.Reader, store storage.Store, opts ImportOptions) ([]consignment.ID, error) {
	if store == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[consignment.ID]struct{}{}
	var out []consignment.ID

	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, entryPrefix) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := consignment.ParseID(strings.TrimPrefix(name, entryPrefix))
		if err != nil || !storage.Defined(id) {
			return out, storage.ErrInvalidID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}
		if err := storage.Verify(id, payload); err != nil {
			return out, err
		}
		if _, ok := seen[id]; ok {
			return out, fmt.Errorf("bundle: duplicate entry: %s", id)
		}
		seen[id] = struct{}{}

		putID, err := store.Put(payload)
		if err != nil {
			return out, err
		}
		if putID != id {
			return out, storage.ErrIDMismatch
		}
		out = append(out, id)
	}
}

type indexJSON struct {
	Version      int          `json:"version"`
	Consignments []indexEntry `json:"consignments"`
	Labels       []indexLabel `json:"labels,omitempty"`
}

type indexEntry struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Contract string `json:"contract"`
	Size     int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
