package armor

import (
	"bytes"
	"strings"
	"testing"
)

func sampleBlock() Block {
	return Block{
		Title: "XDAO TEST",
		Headers: []Header{
			{Key: "Id", Value: "bafkreiexample"},
			{Key: "Version", Value: "2"},
		},
		Body: bytes.Repeat([]byte("consignment body "), 20),
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	out, err := Render(sampleBlock())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := Parse(out, "XDAO TEST")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(b.Body, sampleBlock().Body) {
		t.Fatalf("body mismatch")
	}
	if v, ok := b.Get("Version"); !ok || v != "2" {
		t.Fatalf("Version header = %q, %v", v, ok)
	}
	if _, ok := b.Get(ChecksumHeader); ok {
		t.Fatalf("checksum header must not be exposed")
	}
	again, err := Render(*b)
	if err != nil {
		t.Fatalf("re-render: %v", err)
	}
	if !bytes.Equal(again, out) {
		t.Fatalf("round trip is not byte-identical")
	}
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) > lineWidth && !strings.Contains(line, ": ") {
			t.Fatalf("body line wider than %d: %q", lineWidth, line)
		}
	}
}

func TestRenderEmptyBody(t *testing.T) {
	b := sampleBlock()
	b.Body = nil
	out, err := Render(b)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got, err := Parse(out, b.Title)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got.Body) != 0 {
		t.Fatalf("expected empty body")
	}
}

func TestParseRejects(t *testing.T) {
	good, err := Render(sampleBlock())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	s := string(good)
	sum := Checksum(sampleBlock().Body)

	cases := []struct {
		name string
		in   string
		kind Kind
		rule string
	}{
		{"crlf", strings.ReplaceAll(s, "\n", "\r\n"), KindParse, "ARM-STR-002"},
		{"wrong title", strings.ReplaceAll(s, "XDAO TEST", "XDAO OTHER"), KindParse, "ARM-STR-003"},
		{"no postamble", strings.TrimSuffix(s, "-----END XDAO TEST-----\n"), KindParse, "ARM-STR-004"},
		{"bad checksum", strings.Replace(s, sum, strings.Repeat("0", len(sum)), 1), KindChecksum, "ARM-SUM-001"},
		{"missing checksum", strings.Replace(s, ChecksumHeader+": "+sum+"\n", "", 1), KindParse, "ARM-HDR-004"},
		{"duplicate header", strings.Replace(s, "Version: 2\n", "Version: 2\nVersion: 3\n", 1), KindParse, "ARM-HDR-003"},
		{"malformed header", strings.Replace(s, "Version: 2", "Version 2", 1), KindParse, "ARM-HDR-001"},
		{"header after checksum", strings.Replace(s, sum+"\n", sum+"\nExtra: x\n", 1), KindCanonical, "ARM-CAN-001"},
		{"trailing blank", s + "\n", KindParse, "ARM-STR-004"},
		{"rewrapped body", strings.Replace(s, "\n\n", "\n\n\n", 1), KindCanonical, "ARM-CAN-003"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in), "XDAO TEST")
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsKind(err, tc.kind) {
				t.Fatalf("kind: got %v, want %s", err, tc.kind)
			}
			if got := RuleID(err); got != tc.rule {
				t.Fatalf("rule: got %s, want %s (%v)", got, tc.rule, err)
			}
		})
	}
}

func TestRenderRejects(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Block)
	}{
		{"bad title", func(b *Block) { b.Title = "A-B" }},
		{"bad key", func(b *Block) { b.Headers[0].Key = "Bad Key" }},
		{"reserved key", func(b *Block) { b.Headers[0].Key = ChecksumHeader }},
		{"duplicate", func(b *Block) { b.Headers[1].Key = b.Headers[0].Key }},
		{"empty value", func(b *Block) { b.Headers[0].Value = "" }},
		{"newline value", func(b *Block) { b.Headers[0].Value = "a\nb" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := sampleBlock()
			tc.mod(&b)
			if _, err := Render(b); !IsKind(err, KindRender) {
				t.Fatalf("expected render error, got %v", err)
			}
		})
	}
}
