package resolver

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"

	"github.com/tidwall/gjson"

	"xdao.co/consign/ops"
)

// LoadFile reads a witness table:
//
//	{"witnesses": [
//	  {"id": "<hex txid>", "status": "mined", "height": 100, "timestamp": 1700000000, "tx": "<hex>"},
//	  {"id": "<hex txid>", "status": "tentative"}
//	]}
//
// status is one of mined, tentative or archived; height and timestamp are
// required for mined witnesses. tx is optional.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("resolver: read witness table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable parses the LoadFile format.
func ParseTable(data []byte) (*Static, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("resolver: witness table is not valid JSON")
	}
	list := gjson.GetBytes(data, "witnesses")
	if !list.IsArray() {
		return nil, fmt.Errorf("resolver: witness table has no witnesses array")
	}
	s := NewStatic(nil)
	var perr error
	list.ForEach(func(_, w gjson.Result) bool {
		id, e, err := parseEntry(w)
		if err != nil {
			perr = err
			return false
		}
		if _, dup := s.entries[id]; dup {
			perr = fmt.Errorf("resolver: duplicate witness %s", id)
			return false
		}
		s.Set(id, e)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return s, nil
}

func parseEntry(w gjson.Result) (ops.WitnessID, Entry, error) {
	id, err := ops.ParseWitnessID(w.Get("id").String())
	if err != nil {
		return ops.WitnessID{}, Entry{}, fmt.Errorf("resolver: witness id: %w", err)
	}
	var e Entry
	switch status := w.Get("status").String(); status {
	case "mined":
		height, ts := w.Get("height"), w.Get("timestamp")
		if !height.Exists() || !ts.Exists() {
			return id, e, fmt.Errorf("resolver: witness %s: mined needs height and timestamp", id)
		}
		if height.Uint() > math.MaxUint32 {
			return id, e, fmt.Errorf("resolver: witness %s: height out of range", id)
		}
		e.Status = ops.Mined(ops.WitnessPos{Height: uint32(height.Uint()), Timestamp: ts.Int()})
	case "tentative":
		e.Status = ops.Tentative()
	case "archived":
		e.Status = ops.Archived()
	default:
		return id, e, fmt.Errorf("resolver: witness %s: unknown status %q", id, status)
	}
	if tx := w.Get("tx"); tx.Exists() {
		raw, err := hex.DecodeString(tx.String())
		if err != nil {
			return id, e, fmt.Errorf("resolver: witness %s: tx: %w", id, err)
		}
		e.Tx = raw
	}
	return id, e, nil
}
