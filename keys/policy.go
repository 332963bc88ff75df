package keys

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"xdao.co/consign/ops"
)

const (
	policyBegin = "-----BEGIN XDAO SIGNER POLICY-----"
	policyEnd   = "-----END XDAO SIGNER POLICY-----"
)

// Content selectors a policy rule can require signatures over.
const (
	ContentContract = "contract"
	ContentSchema   = "schema"
	ContentAny      = "any"
)

var (
	ErrPolicy = errors.New("keys: invalid signer policy")
	ErrQuorum = errors.New("keys: signer quorum not met")
)

// Policy is a signer policy:
//
//	-----BEGIN XDAO SIGNER POLICY-----
//	META
//	Name: issuers
//
//	TRUST
//	Key: ed25519:<base64>
//	Role: issuer
//
//	RULES
//	Require:
//	  Content: contract
//	  Role: issuer
//	  Quorum: 2
//	-----END XDAO SIGNER POLICY-----
//
// Quorum defaults to 1. Content is contract, schema or any.
type Policy struct {
	Meta  map[string]string
	Trust []TrustEntry
	Rules []Rule
}

type TrustEntry struct {
	Key    string
	Role   string
	signer []byte
}

type Rule struct {
	Content string
	Role    string
	Quorum  int
}

func policyErr(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrPolicy, line, fmt.Sprintf(format, args...))
}

func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePolicy(data)
}

// ParsePolicy parses the text form. CR line endings, a BOM and trailing
// whitespace are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, fmt.Errorf("%w: BOM not allowed", ErrPolicy)
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, fmt.Errorf("%w: CR line endings not allowed", ErrPolicy)
	}
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte(policyBegin)) || !bytes.HasSuffix(trimmed, []byte(policyEnd)) {
		return nil, fmt.Errorf("%w: missing BEGIN/END markers", ErrPolicy)
	}

	p := &Policy{Meta: make(map[string]string)}
	var (
		section string
		key     string
		rule    *Rule
	)
	flushRule := func(line int) error {
		if rule == nil {
			return nil
		}
		if rule.Role == "" {
			return policyErr(line, "Require block missing Role")
		}
		switch rule.Content {
		case ContentContract, ContentSchema, ContentAny:
		default:
			return policyErr(line, "Require block has invalid Content %q", rule.Content)
		}
		p.Rules = append(p.Rules, *rule)
		rule = nil
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		if raw != strings.TrimRight(raw, " \t") {
			return nil, policyErr(n, "trailing whitespace")
		}
		line := strings.TrimSpace(raw)
		switch line {
		case policyBegin, "":
			continue
		case policyEnd:
			if err := flushRule(n); err != nil {
				return nil, err
			}
			continue
		case "META", "TRUST", "RULES":
			if err := flushRule(n); err != nil {
				return nil, err
			}
			if key != "" {
				return nil, policyErr(n, "Key without Role")
			}
			section = line
			continue
		}

		name, value, ok := strings.Cut(line, ": ")
		if !ok && line != "Require:" {
			return nil, policyErr(n, "expected 'Name: value'")
		}
		switch section {
		case "META":
			p.Meta[name] = value
		case "TRUST":
			switch {
			case name == "Key" && key == "":
				key = value
			case name == "Role" && key != "":
				signer, err := ParseSignerKey(key)
				if err != nil {
					return nil, policyErr(n, "%v", err)
				}
				p.Trust = append(p.Trust, TrustEntry{Key: key, Role: value, signer: signer})
				key = ""
			default:
				return nil, policyErr(n, "expected Key then Role")
			}
		case "RULES":
			if line == "Require:" {
				if err := flushRule(n); err != nil {
					return nil, err
				}
				rule = &Rule{Content: ContentAny, Quorum: 1}
				continue
			}
			if rule == nil {
				return nil, policyErr(n, "field outside a Require block")
			}
			switch name {
			case "Content":
				rule.Content = value
			case "Role":
				rule.Role = value
			case "Quorum":
				q, err := strconv.Atoi(value)
				if err != nil || q < 1 {
					return nil, policyErr(n, "invalid Quorum %q", value)
				}
				rule.Quorum = q
			default:
				return nil, policyErr(n, "unknown Require field %q", name)
			}
		default:
			return nil, policyErr(n, "content outside a section")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if key != "" {
		return nil, policyErr(n, "Key without Role")
	}
	return p, nil
}

func (p *Policy) roleOf(signer []byte) []string {
	var roles []string
	for _, t := range p.Trust {
		if bytes.Equal(t.signer, signer) {
			roles = append(roles, t.Role)
		}
	}
	return roles
}

func (r Rule) applies(id ops.ContentID, contract ops.ContractID, schema ops.SchemaID) bool {
	switch r.Content {
	case ContentContract:
		return id == ops.ContentID(contract)
	case ContentSchema:
		return id == ops.ContentID(schema)
	default:
		return true
	}
}

// Checker returns a signature hook for one consignment. Every signature must
// verify, and each rule that applies to the signed content must be met by
// enough distinct trusted signers holding the rule's role.
func (p *Policy) Checker(contract ops.ContractID, schema ops.SchemaID) func(ops.ContentID, ops.ContentSigs) error {
	return func(id ops.ContentID, sigs ops.ContentSigs) error {
		if len(sigs) == 0 {
			return ErrNoSignatures
		}
		count := make(map[string]map[string]struct{})
		for _, sig := range sigs {
			if err := Verify(id, sig); err != nil {
				return err
			}
			for _, role := range p.roleOf(sig.Signer) {
				if count[role] == nil {
					count[role] = make(map[string]struct{})
				}
				count[role][string(sig.Signer)] = struct{}{}
			}
		}
		for _, r := range p.Rules {
			if !r.applies(id, contract, schema) {
				continue
			}
			if got := len(count[r.Role]); got < r.Quorum {
				return fmt.Errorf("%w: %s needs %d %s signature(s), has %d", ErrQuorum, r.Content, r.Quorum, r.Role, got)
			}
		}
		return nil
	}
}

// Unsigned returns the rules naming contract or schema content that carries
// no signatures at all. Checker never sees such content.
func (p *Policy) Unsigned(signed map[ops.ContentID]ops.ContentSigs, contract ops.ContractID, schema ops.SchemaID) []Rule {
	var out []Rule
	for _, r := range p.Rules {
		var id ops.ContentID
		switch r.Content {
		case ContentContract:
			id = ops.ContentID(contract)
		case ContentSchema:
			id = ops.ContentID(schema)
		default:
			continue
		}
		if len(signed[id]) == 0 {
			out = append(out, r)
		}
	}
	return out
}
