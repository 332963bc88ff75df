// Package commit implements the tagged commitment engine used to derive every
// identifier in the module.
//
// An Engine is a sha256 hasher primed with a domain tag. Components are fed in a
// caller-defined order; the engine frames every component with its length so
// that adjacent components can never be confused with each other.
//
// Multi-valued components are committed either as sets (sorted, de-duplicated
// digests, insertion order irrelevant) or as maps (sorted key -> value pairs).
package commit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	// nil and empty containers must serialize identically.
	opts.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("commit: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("commit: cbor dec mode: %v", err))
	}
}

// Marshal returns the canonical (CBOR core deterministic) serialization of v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes canonical bytes produced by Marshal.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Engine accumulates commitment components.
type Engine struct {
	h hash.Hash
}

// NewEngine returns an engine primed with sha256(tag) || sha256(tag).
func NewEngine(tag string) *Engine {
	t := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(t[:])
	h.Write(t[:])
	return &Engine{h: h}
}

func (e *Engine) writeLen(n int) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	e.h.Write(b[:])
}

// CommitBytes commits a length-prefixed byte string.
func (e *Engine) CommitBytes(b []byte) {
	e.writeLen(len(b))
	e.h.Write(b)
}

// CommitDigest commits a fixed-size digest.
func (e *Engine) CommitDigest(d [32]byte) {
	e.h.Write(d[:])
}

// CommitUint commits an unsigned integer.
func (e *Engine) CommitUint(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.h.Write(b[:])
}

// CommitBool commits a boolean as a single byte.
func (e *Engine) CommitBool(v bool) {
	if v {
		e.h.Write([]byte{1})
		return
	}
	e.h.Write([]byte{0})
}

// CommitSerialized commits the canonical serialization of v.
//
// Values fed here are plain data records; a serialization failure means a
// non-serializable type was passed, which is a programming error.
func (e *Engine) CommitSerialized(v any) {
	b, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("commit: serialize %T: %v", v, err))
	}
	e.CommitBytes(b)
}

// Finish returns the commitment digest. The engine must not be reused.
func (e *Engine) Finish() [32]byte {
	var out [32]byte
	copy(out[:], e.h.Sum(nil))
	return out
}

// Digest is the common shortcut: a tagged commitment over one serialized value.
func Digest(tag string, v any) [32]byte {
	e := NewEngine(tag)
	e.CommitSerialized(v)
	return e.Finish()
}

// CommitSet commits items as a set: sorted, de-duplicated, count-prefixed.
func CommitSet[T ~[32]byte](e *Engine, items []T) {
	set := SortedSet(items)
	e.writeLen(len(set))
	for _, d := range set {
		e.CommitDigest([32]byte(d))
	}
}

// CommitMap commits m as sorted key -> serialized value pairs.
func CommitMap[K ~[32]byte, V any](e *Engine, m map[K]V) {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	keys = SortedSet(keys)
	e.writeLen(len(keys))
	for _, k := range keys {
		e.CommitDigest([32]byte(k))
		e.CommitSerialized(m[k])
	}
}

// SortedSet returns a sorted, de-duplicated copy of items.
func SortedSet[T ~[32]byte](items []T) []T {
	out := append([]T(nil), items...)
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	n := 0
	for i := range out {
		if n > 0 && out[n-1] == out[i] {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Less orders digests bytewise.
func Less[T ~[32]byte](a, b T) bool {
	aa, bb := [32]byte(a), [32]byte(b)
	return bytes.Compare(aa[:], bb[:]) < 0
}

// Compare orders digests bytewise, returning -1, 0 or +1.
func Compare[T ~[32]byte](a, b T) int {
	aa, bb := [32]byte(a), [32]byte(b)
	return bytes.Compare(aa[:], bb[:])
}
