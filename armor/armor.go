// Package armor implements the armored text encoding used to exchange binary
// payloads as plain text.
//
// A block looks like:
//
//	-----BEGIN <TITLE>-----
//	Key: Value
//	Check-SHA256: <hex sha256 of body>
//
//	<base64 body, 64 columns>
//
//	-----END <TITLE>-----
//
// Encoding is canonical: Parse accepts exactly the bytes Render produces for
// the decoded block and nothing else.
package armor

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	// ChecksumHeader is appended by Render and verified and removed by Parse.
	ChecksumHeader = "Check-SHA256"

	lineWidth = 64
)

// Header is a single "Key: Value" line.
type Header struct {
	Key   string
	Value string
}

// Block is a decoded armored block. Headers keep their on-wire order and do
// not include the checksum header.
type Block struct {
	Title   string
	Headers []Header
	Body    []byte
}

// Get returns the value of the first header with the given key.
func (b *Block) Get(key string) (string, bool) {
	for _, h := range b.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func preamble(title string) string  { return "-----BEGIN " + title + "-----" }
func postamble(title string) string { return "-----END " + title + "-----" }

// Checksum returns the hex sha256 of body, as carried in the checksum header.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

func validValue(v string) bool {
	if v == "" || strings.ContainsAny(v, "\r\n") {
		return false
	}
	return !strings.HasPrefix(v, " ") && !strings.HasSuffix(v, " ") && !strings.HasSuffix(v, "\t")
}

func validTitle(t string) bool {
	if t == "" || strings.Contains(t, "-") || strings.ContainsAny(t, "\r\n") {
		return false
	}
	return strings.TrimSpace(t) == t
}

// Render produces the canonical armored bytes of b.
func Render(b Block) ([]byte, error) {
	if !validTitle(b.Title) {
		return nil, newError(KindRender, "ARM-RND-001", "invalid block title")
	}
	seen := make(map[string]bool, len(b.Headers))
	for _, h := range b.Headers {
		if !validKey(h.Key) {
			return nil, newError(KindRender, "ARM-RND-002", "invalid header key "+h.Key)
		}
		if h.Key == ChecksumHeader {
			return nil, newError(KindRender, "ARM-RND-003", "checksum header is reserved")
		}
		if seen[h.Key] {
			return nil, newError(KindRender, "ARM-RND-004", "duplicate header "+h.Key)
		}
		seen[h.Key] = true
		if !validValue(h.Value) || !utf8.ValidString(h.Value) {
			return nil, newError(KindRender, "ARM-RND-005", "invalid value for header "+h.Key)
		}
	}

	var sb strings.Builder
	sb.WriteString(preamble(b.Title))
	sb.WriteString("\n")
	for _, h := range b.Headers {
		sb.WriteString(h.Key)
		sb.WriteString(": ")
		sb.WriteString(h.Value)
		sb.WriteString("\n")
	}
	sb.WriteString(ChecksumHeader)
	sb.WriteString(": ")
	sb.WriteString(Checksum(b.Body))
	sb.WriteString("\n\n")

	enc := base64.StdEncoding.EncodeToString(b.Body)
	for len(enc) > 0 {
		n := min(lineWidth, len(enc))
		sb.WriteString(enc[:n])
		sb.WriteString("\n")
		enc = enc[n:]
	}
	sb.WriteString("\n")
	sb.WriteString(postamble(b.Title))
	sb.WriteString("\n")
	return []byte(sb.String()), nil
}

// Parse decodes an armored block with the given title, verifies its checksum
// and rejects any non-canonical encoding.
func Parse(data []byte, title string) (*Block, error) {
	if !utf8.Valid(data) {
		return nil, newError(KindParse, "ARM-STR-001", "armored text must be valid UTF-8")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, newError(KindParse, "ARM-STR-002", "CR line endings not allowed")
	}
	text := string(data)
	if !strings.HasPrefix(text, preamble(title)+"\n") {
		return nil, newError(KindParse, "ARM-STR-003", "missing "+title+" preamble")
	}
	if !strings.HasSuffix(text, "\n"+postamble(title)+"\n") {
		return nil, newError(KindParse, "ARM-STR-004", "missing "+title+" postamble")
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(text, preamble(title)+"\n"), postamble(title)+"\n")

	head, rest, ok := strings.Cut(inner, "\n\n")
	if !ok {
		return nil, newError(KindParse, "ARM-STR-005", "missing blank line after headers")
	}

	b := &Block{Title: title}
	var checksum string
	for _, line := range strings.Split(head, "\n") {
		k, v, ok := strings.Cut(line, ": ")
		if !ok || !validKey(k) || !validValue(v) {
			return nil, newError(KindParse, "ARM-HDR-001", "malformed header line")
		}
		if k == ChecksumHeader {
			if checksum != "" {
				return nil, newError(KindParse, "ARM-HDR-002", "duplicate checksum header")
			}
			checksum = v
			continue
		}
		if checksum != "" {
			return nil, newError(KindCanonical, "ARM-CAN-001", "checksum header must be last")
		}
		if _, dup := b.Get(k); dup {
			return nil, newError(KindParse, "ARM-HDR-003", "duplicate header "+k)
		}
		b.Headers = append(b.Headers, Header{Key: k, Value: v})
	}
	if checksum == "" {
		return nil, newError(KindParse, "ARM-HDR-004", "missing checksum header")
	}

	body, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(rest, "\n", ""))
	if err != nil {
		return nil, wrapError(KindParse, "ARM-B64-001", "invalid base64 body", err)
	}
	b.Body = body

	if Checksum(body) != checksum {
		return nil, newError(KindChecksum, "ARM-SUM-001", "body checksum mismatch")
	}

	canonical, err := Render(*b)
	if err != nil {
		return nil, wrapError(KindCanonical, "ARM-CAN-002", "block cannot be rendered", err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, newError(KindCanonical, "ARM-CAN-003", "non-canonical armored text")
	}
	return b, nil
}
