package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// KeyStore keeps ed25519 signer seeds on the local filesystem:
//
//	<Directory>/<name>/root.key
//	<Directory>/<name>/roles/<role>.key
//
// Each file holds a hex seed and a newline.
type KeyStore struct {
	Directory string
}

// Signer is a stored identity and the roles derived from it.
type Signer struct {
	Name  string
	Roles []string
}

// DefaultDirectory is ~/.xdao/consign/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "consign", "keys"), nil
}

// OpenKeyStore returns a store rooted at directory, or at DefaultDirectory
// when directory is empty. Nothing is created until a key is written.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		if directory, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func checkName(what, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", c, what)
	}
	return nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

// ParseSeedHex parses a hex ed25519 seed, with or without a 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return seed, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitRoot stores seed as the root key of name and returns its signer key.
func (ks *KeyStore) InitRoot(name string, seed []byte, overwrite bool) (string, error) {
	if err := checkName("name", name); err != nil {
		return "", err
	}
	if err := writeSeed(ks.rootPath(name), seed, overwrite); err != nil {
		return "", err
	}
	return SignerKeyFromSeed(seed), nil
}

// DeriveRole derives and stores the role key of name.
func (ks *KeyStore) DeriveRole(name, role string, overwrite bool) (string, error) {
	if err := checkName("name", name); err != nil {
		return "", err
	}
	root, err := readSeed(ks.rootPath(name))
	if err != nil {
		return "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", err
	}
	if err := writeSeed(ks.rolePath(name, role), seed, overwrite); err != nil {
		return "", err
	}
	return SignerKeyFromSeed(seed), nil
}

// PrivateKey loads the root key of name, or its role key when role is set.
func (ks *KeyStore) PrivateKey(name, role string) (ed25519.PrivateKey, error) {
	if err := checkName("name", name); err != nil {
		return nil, err
	}
	path := ks.rootPath(name)
	if role != "" {
		if err := checkName("role", role); err != nil {
			return nil, err
		}
		path = ks.rolePath(name, role)
	}
	seed, err := readSeed(path)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// List returns the stored signers sorted by name, each with sorted roles.
func (ks *KeyStore) List() ([]Signer, error) {
	entries, err := os.ReadDir(ks.Directory)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Signer
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s := Signer{Name: e.Name()}
		roles, err := os.ReadDir(filepath.Join(ks.Directory, e.Name(), "roles"))
		if err == nil {
			for _, r := range roles {
				if !r.IsDir() && strings.HasSuffix(r.Name(), ".key") {
					s.Roles = append(s.Roles, strings.TrimSuffix(r.Name(), ".key"))
				}
			}
			slices.Sort(s.Roles)
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Signer) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
