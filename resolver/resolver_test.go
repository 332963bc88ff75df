package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

var (
	wA = ops.WitnessID{0xa}
	wB = ops.WitnessID{0xb}
)

// countingResolver counts inner calls and fails the first failures calls with
// a connection error.
type countingResolver struct {
	mu       sync.Mutex
	inner    validation.ResolveWitness
	calls    int
	failures int
	kind     validation.ResolverErrorKind
}

func (c *countingResolver) fail(id ops.WitnessID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		kind := c.kind
		if kind == "" {
			kind = validation.ResolverConnection
		}
		return &validation.ResolverError{Kind: kind, Witness: id, Cause: errors.New("boom")}
	}
	return nil
}

func (c *countingResolver) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	if err := c.fail(id); err != nil {
		return nil, err
	}
	return c.inner.ResolvePubWitness(ctx, id)
}

func (c *countingResolver) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	if err := c.fail(id); err != nil {
		return ops.WitnessStatus{}, err
	}
	return c.inner.ResolvePubWitnessOrd(ctx, id)
}

func table() *Static {
	return NewStatic(map[ops.WitnessID]Entry{
		wA: {Status: ops.Mined(ops.WitnessPos{Height: 10, Timestamp: 100}), Tx: []byte{1, 2, 3}},
		wB: {Status: ops.Tentative()},
	})
}

func TestStatic(t *testing.T) {
	s := table()
	ctx := context.Background()

	st, err := s.ResolvePubWitnessOrd(ctx, wA)
	if err != nil || !st.IsMined() || st.Pos.Height != 10 {
		t.Fatalf("ResolvePubWitnessOrd(A) = %v, %v", st, err)
	}
	w, err := s.ResolvePubWitness(ctx, wA)
	if err != nil || w.ID != wA || string(w.Tx) != "\x01\x02\x03" {
		t.Fatalf("ResolvePubWitness(A) = %+v, %v", w, err)
	}
	w.Tx[0] = 9
	if again, _ := s.ResolvePubWitness(ctx, wA); again.Tx[0] != 1 {
		t.Fatalf("returned tx aliases the table")
	}
	if _, err := s.ResolvePubWitness(ctx, wB); !validation.IsUnknownWitness(err) {
		t.Fatalf("ResolvePubWitness(B) error = %v, want Unknown (no tx)", err)
	}
	if _, err := s.ResolvePubWitnessOrd(ctx, ops.WitnessID{0xff}); !validation.IsUnknownWitness(err) {
		t.Fatalf("unknown witness error = %v, want Unknown", err)
	}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	first := NewStatic(map[ops.WitnessID]Entry{wB: {Status: ops.Archived()}})
	m := Multi{Resolvers: []validation.ResolveWitness{first, table()}}

	st, err := m.ResolvePubWitnessOrd(ctx, wB)
	if err != nil || st.Kind != ops.OrdArchived {
		t.Fatalf("first resolver must win: %v, %v", st, err)
	}
	if st, err := m.ResolvePubWitnessOrd(ctx, wA); err != nil || !st.IsMined() {
		t.Fatalf("fallback failed: %v, %v", st, err)
	}
	if _, err := m.ResolvePubWitnessOrd(ctx, ops.WitnessID{0xff}); !validation.IsUnknownWitness(err) {
		t.Fatalf("error = %v, want Unknown", err)
	}

	broken := &countingResolver{inner: first, failures: 1}
	m = Multi{Resolvers: []validation.ResolveWitness{broken, table()}}
	if _, err := m.ResolvePubWitnessOrd(ctx, wA); !IsConnection(err) {
		t.Fatalf("error = %v, want the connection error to stop the lookup", err)
	}
}

func TestCachingCallsInnerOnce(t *testing.T) {
	inner := &countingResolver{inner: table()}
	c := NewCaching(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ResolvePubWitnessOrd(ctx, wA); err != nil {
				t.Errorf("ResolvePubWitnessOrd: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := c.ResolvePubWitnessOrd(ctx, wA); err != nil {
		t.Fatalf("ResolvePubWitnessOrd: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	c.Reset()
	if _, err := c.ResolvePubWitnessOrd(ctx, wA); err != nil {
		t.Fatalf("ResolvePubWitnessOrd after Reset: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls after Reset = %d, want 2", inner.calls)
	}
}

// blockingResolver answers from a table once release is closed, or fails
// when its context ends first.
type blockingResolver struct {
	*Static
	started chan struct{}
	release chan struct{}
}

func (b *blockingResolver) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	close(b.started)
	select {
	case <-b.release:
		return b.Static.ResolvePubWitnessOrd(ctx, id)
	case <-ctx.Done():
		return ops.WitnessStatus{}, ctx.Err()
	}
}

func TestCachingSurvivesFirstCallerCancel(t *testing.T) {
	inner := &blockingResolver{Static: table(), started: make(chan struct{}), release: make(chan struct{})}
	c := NewCaching(inner)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ResolvePubWitnessOrd(first, wA)
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		st  ops.WitnessStatus
		err error
	}
	second := make(chan result, 1)
	go func() {
		st, err := c.ResolvePubWitnessOrd(context.Background(), wA)
		second <- result{st, err}
	}()

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("cancelled caller still waiting")
	}

	close(inner.release)
	select {
	case r := <-second:
		if r.err != nil || !r.st.IsMined() || r.st.Pos.Height != 10 {
			t.Fatalf("live caller = %v, %v", r.st, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("live caller still waiting")
	}
}

func TestCachingDoesNotCacheErrors(t *testing.T) {
	inner := &countingResolver{inner: table(), failures: 1}
	c := NewCaching(inner)
	ctx := context.Background()

	if _, err := c.ResolvePubWitness(ctx, wA); err == nil {
		t.Fatalf("expected the first lookup to fail")
	}
	w, err := c.ResolvePubWitness(ctx, wA)
	if err != nil || w.ID != wA {
		t.Fatalf("second lookup = %+v, %v", w, err)
	}
	if _, err := c.ResolvePubWitness(ctx, wA); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.calls)
	}
}

func TestRetrying(t *testing.T) {
	ctx := context.Background()

	flaky := &countingResolver{inner: table(), failures: 2}
	r := Retrying{Inner: flaky, InitialInterval: time.Millisecond}
	st, err := r.ResolvePubWitnessOrd(ctx, wA)
	if err != nil || !st.IsMined() {
		t.Fatalf("ResolvePubWitnessOrd = %v, %v", st, err)
	}
	if flaky.calls != 3 {
		t.Fatalf("calls = %d, want 3", flaky.calls)
	}

	other := &countingResolver{inner: table(), failures: 5, kind: validation.ResolverOther}
	r = Retrying{Inner: other, InitialInterval: time.Millisecond}
	if _, err := r.ResolvePubWitness(ctx, wA); err == nil {
		t.Fatalf("expected non-connection error")
	}
	if other.calls != 1 {
		t.Fatalf("non-connection error retried: calls = %d", other.calls)
	}

	down := &countingResolver{inner: table(), failures: 100}
	r = Retrying{Inner: down, MaxTries: 3, InitialInterval: time.Millisecond}
	if _, err := r.ResolvePubWitnessOrd(ctx, wA); !IsConnection(err) {
		t.Fatalf("error = %v, want connection error after retries", err)
	}
	if down.calls != 3 {
		t.Fatalf("calls = %d, want 3", down.calls)
	}
}

func TestParseTable(t *testing.T) {
	doc := `{"witnesses": [
	  {"id": "` + strings.Repeat("0a", 1) + strings.Repeat("00", 31) + `", "status": "mined", "height": 10, "timestamp": 100, "tx": "010203"},
	  {"id": "` + strings.Repeat("0b", 1) + strings.Repeat("00", 31) + `", "status": "tentative"}
	]}`
	s, err := ParseTable([]byte(doc))
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if e := entries[wA]; !e.Status.IsMined() || e.Status.Pos.Timestamp != 100 || len(e.Tx) != 3 {
		t.Fatalf("entry A = %+v", e)
	}
	if e := entries[wB]; e.Status.Kind != ops.OrdTentative {
		t.Fatalf("entry B = %+v", e)
	}

	path := filepath.Join(t.TempDir(), "witnesses.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
}

func TestParseTableRejects(t *testing.T) {
	id := strings.Repeat("00", 32)
	tests := map[string]string{
		"not json":       `{"witnesses": [`,
		"no array":       `{"witnesses": {}}`,
		"bad id":         `{"witnesses": [{"id": "zz", "status": "tentative"}]}`,
		"bad status":     `{"witnesses": [{"id": "` + id + `", "status": "pending"}]}`,
		"mined no pos":   `{"witnesses": [{"id": "` + id + `", "status": "mined"}]}`,
		"bad tx":         `{"witnesses": [{"id": "` + id + `", "status": "tentative", "tx": "xyz"}]}`,
		"duplicate":      `{"witnesses": [{"id": "` + id + `", "status": "tentative"}, {"id": "` + id + `", "status": "archived"}]}`,
		"height too big": `{"witnesses": [{"id": "` + id + `", "status": "mined", "height": 4294967296, "timestamp": 1}]}`,
	}
	for name, doc := range tests {
		if _, err := ParseTable([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
