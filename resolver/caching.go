package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// Caching memoises the successful answers of an inner resolver. Concurrent
// lookups of the same witness share a single inner call. Errors are not
// cached.
//
// The shared call is not cancelled with the caller that started it; each
// caller stops waiting when its own context is done. The inner resolver
// bounds the call itself.
//
// Orders of unmined witnesses change over time; a Caching resolver is meant
// to live for one validation or import run, or to be Reset between runs.
type Caching struct {
	inner validation.ResolveWitness

	group singleflight.Group

	mu   sync.RWMutex
	ords map[ops.WitnessID]ops.WitnessStatus
	pubs map[ops.WitnessID]*ops.PubWitness
}

var _ validation.ResolveWitness = (*Caching)(nil)

func NewCaching(inner validation.ResolveWitness) *Caching {
	c := &Caching{inner: inner}
	c.Reset()
	return c
}

// Reset drops every cached answer.
func (c *Caching) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ords = make(map[ops.WitnessID]ops.WitnessStatus)
	c.pubs = make(map[ops.WitnessID]*ops.PubWitness)
}

func (c *Caching) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	c.mu.RLock()
	s, ok := c.ords[id]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}
	v, err := c.do(ctx, "ord:"+id.String(), func(ctx context.Context) (any, error) {
		c.mu.RLock()
		s, ok := c.ords[id]
		c.mu.RUnlock()
		if ok {
			return s, nil
		}
		s, err := c.inner.ResolvePubWitnessOrd(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.ords[id] = s
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return ops.WitnessStatus{}, err
	}
	return v.(ops.WitnessStatus), nil
}

func (c *Caching) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	c.mu.RLock()
	w, ok := c.pubs[id]
	c.mu.RUnlock()
	if ok {
		return clonePub(w), nil
	}
	v, err := c.do(ctx, "pub:"+id.String(), func(ctx context.Context) (any, error) {
		c.mu.RLock()
		w, ok := c.pubs[id]
		c.mu.RUnlock()
		if ok {
			return w, nil
		}
		w, err := c.inner.ResolvePubWitness(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.pubs[id] = clonePub(w)
		c.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePub(v.(*ops.PubWitness)), nil
}

// do shares one call of fn per key. fn runs under ctx without its
// cancellation.
func (c *Caching) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func clonePub(w *ops.PubWitness) *ops.PubWitness {
	if w == nil {
		return nil
	}
	return &ops.PubWitness{ID: w.ID, Tx: append([]byte(nil), w.Tx...)}
}
