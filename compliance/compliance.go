// Package compliance selects how strictly consignment validation treats
// non-fatal findings.
package compliance

import "fmt"

// ComplianceMode selects how aggressively validation rejects ambiguity.
//
// Permissive accepts a consignment whose status carries warnings as long as
// it is valid. Strict prefers explicit failure: any warning rejects.
type ComplianceMode int

const (
	Permissive ComplianceMode = iota
	Strict
)

func (m ComplianceMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses the textual form used on command lines and in config.
func ParseMode(s string) (ComplianceMode, error) {
	switch s {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("unknown compliance mode %q (want permissive or strict)", s)
	}
}
