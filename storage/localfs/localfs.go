package localfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"xdao.co/consign/consignment"
	"xdao.co/consign/storage"
)

// Store is a local filesystem-backed consignment store.
//
// Objects are stored immutably in canonical armored form and keyed strictly
// by consignment id. It never uses the network and never depends on
// wall-clock time.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(armored []byte) (consignment.ID, error) {
	id, canon, err := storage.Canonical(armored)
	if err != nil {
		return consignment.ID{}, err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return consignment.ID{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || !bytes.Equal(existing, canon) {
				return consignment.ID{}, storage.ErrImmutable
			}
			return id, nil
		}
		return consignment.ID{}, err
	}

	if _, err := f.Write(canon); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return consignment.ID{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return consignment.ID{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return consignment.ID{}, err
	}
	return id, nil
}

func (s *Store) Get(id consignment.ID) ([]byte, error) {
	if !storage.Defined(id) {
		return nil, storage.ErrInvalidID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, storage.ErrIDMismatch
	}
	return b, nil
}

func (s *Store) Has(id consignment.ID) bool {
	if !storage.Defined(id) {
		return false
	}
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// IDs lists the stored consignment ids in lexicographic order of their
// textual form.
func (s *Store) IDs() ([]consignment.ID, error) {
	var out []consignment.ID
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		id, perr := consignment.ParseID(d.Name())
		if perr != nil {
			return nil
		}
		out = append(out, id)
		return nil
	})
	slices.SortFunc(out, func(a, b consignment.ID) int { return strings.Compare(a.String(), b.String()) })
	return out, err
}

func (s *Store) pathFor(id consignment.ID) string {
	str := id.String()
	if len(str) < 4 {
		return filepath.Join(s.root, str)
	}
	// CIDv1 strings share their leading multibase and version characters.
	return filepath.Join(s.root, str[len(str)-2:], str)
}
