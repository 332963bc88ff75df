package persistence

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xdao.co/consign/commit"
	"xdao.co/consign/consignment"
	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

const tracerName = "xdao.co/consign/persistence"

// State is the state reconciliation engine. It folds genesis, transitions and
// extensions into a StateProvider in witness order.
//
// Every update runs inside a provider transaction and is rolled back on
// error. If the caller already began a transaction through the State, updates
// join it and leave commit or rollback to the caller.
//
// A State is not safe for concurrent use; use one per goroutine. Writers to the
// same contract are serialized by the provider's transactions.
type State struct {
	provider StateProvider
	tracer   trace.Tracer
	inTx     bool
}

// Option configures a State.
type Option func(*State)

// WithTracerProvider sets the tracer provider; the global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *State) { s.tracer = tp.Tracer(tracerName) }
}

func NewState(provider StateProvider, opts ...Option) *State {
	s := &State{provider: provider, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the underlying provider.
func (s *State) Provider() StateProvider { return s.provider }

func (s *State) BeginTransaction(ctx context.Context) error {
	if s.inTx {
		return writeErr(errors.New("transaction already in progress"))
	}
	if err := s.provider.BeginTransaction(ctx); err != nil {
		return writeErr(err)
	}
	s.inTx = true
	return nil
}

func (s *State) CommitTransaction(ctx context.Context) error {
	s.inTx = false
	if err := s.provider.CommitTransaction(ctx); err != nil {
		return writeErr(err)
	}
	return nil
}

func (s *State) RollbackTransaction(ctx context.Context) error {
	s.inTx = false
	if err := s.provider.RollbackTransaction(ctx); err != nil {
		return writeErr(err)
	}
	return nil
}

// inTransaction runs fn inside a transaction unless one is already open.
func (s *State) inTransaction(ctx context.Context, fn func() error) error {
	if s.inTx {
		return fn()
	}
	if err := s.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := s.RollbackTransaction(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return s.CommitTransaction(ctx)
}

func (s *State) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ContractState returns a read handle on a contract.
func (s *State) ContractState(ctx context.Context, id ops.ContractID) (ContractStateRead, error) {
	st, err := s.provider.ContractState(ctx, id)
	if errors.Is(err, ErrUnknownContract) {
		return nil, unknownContract(id)
	}
	if err != nil {
		return nil, readErr(err)
	}
	return st, nil
}

func resolveOrd(ctx context.Context, resolver validation.ResolveWitness, id ops.WitnessID) (ops.WitnessOrd, error) {
	if resolver == nil {
		return ops.WitnessOrd{}, resolverErr(id, &validation.ResolverError{Kind: validation.ResolverUnknown, Witness: id})
	}
	status, err := resolver.ResolvePubWitnessOrd(ctx, id)
	if err != nil {
		return ops.WitnessOrd{}, resolverErr(id, err)
	}
	return ops.NewWitnessOrd(status, id), nil
}

// UpdateFromBundle applies every transition of a bundle anchored by witness
// to an already registered contract. Unknown contracts are an Inconsistency
// error and nothing is written.
func (s *State) UpdateFromBundle(ctx context.Context, contractID ops.ContractID, bundle *ops.TransitionBundle, witness ops.WitnessID, resolver validation.ResolveWitness) (err error) {
	ctx, span := s.startSpan(ctx, "persistence.UpdateFromBundle",
		attribute.String("contract", contractID.String()),
		attribute.String("witness", witness.String()),
		attribute.Int("transitions", len(bundle.Transitions)),
	)
	defer func() { endSpan(span, err) }()

	return s.inTransaction(ctx, func() error {
		w, ok, err := s.provider.UpdateContract(ctx, contractID)
		if err != nil {
			return writeErr(err)
		}
		if !ok {
			return unknownContract(contractID)
		}
		ord, err := resolveOrd(ctx, resolver, witness)
		if err != nil {
			return err
		}
		for i := range bundle.Transitions {
			if err := w.AddTransition(ctx, &bundle.Transitions[i], ord); err != nil {
				return writeErr(err)
			}
		}
		return nil
	})
}

// UpdateFromConsignment folds a consignment into the provider: the contract
// is registered from genesis, transitions are applied bundle by bundle at the
// order of their witness, and every extension consumed by some transition is
// applied at the earliest order of its consumers. Extensions no transition
// consumes are not applied.
//
// No validation is performed; the consignment must already be validated.
func (s *State) UpdateFromConsignment(ctx context.Context, c consignment.ConsignmentExt, resolver validation.ResolveWitness) (err error) {
	ctx, span := s.startSpan(ctx, "persistence.UpdateFromConsignment",
		attribute.String("contract", c.ContractID().String()),
		attribute.Int("bundles", len(c.BundledWitnesses())),
		attribute.Int("extensions", len(c.Extensions())),
	)
	defer func() { endSpan(span, err) }()

	return s.inTransaction(ctx, func() error {
		w, err := s.provider.RegisterContract(ctx, c.Schema(), c.Genesis())
		if err != nil {
			return writeErr(err)
		}
		if err := w.AddGenesis(ctx, c.Genesis()); err != nil {
			return writeErr(err)
		}

		exts := make(map[ops.OpID]*ops.Extension, len(c.Extensions()))
		for i := range c.Extensions() {
			x := &c.Extensions()[i]
			exts[x.ID()] = x
		}
		used := make(map[ops.OpID]ops.WitnessOrd)

		for i := range c.BundledWitnesses() {
			bw := &c.BundledWitnesses()[i]
			for j := range bw.Anchors {
				bundle := &bw.Anchors[j].Bundle
				ord, err := resolveOrd(ctx, resolver, bw.WitnessID())
				if err != nil {
					return err
				}
				for k := range bundle.Transitions {
					t := &bundle.Transitions[k]
					if err := w.AddTransition(ctx, t, ord); err != nil {
						return writeErr(err)
					}
					for _, in := range t.Inputs {
						if _, ok := exts[in.PrevOut.Op]; !ok {
							continue
						}
						if prev, seen := used[in.PrevOut.Op]; !seen || ord.Less(prev) {
							used[in.PrevOut.Op] = ord
						}
					}
				}
			}
		}

		ids := make([]ops.OpID, 0, len(used))
		for id := range used {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(a, b ops.OpID) int {
			if d := used[a].Compare(used[b]); d != 0 {
				return d
			}
			return commit.Compare(a, b)
		})
		for _, id := range ids {
			if err := w.AddExtension(ctx, exts[id], used[id]); err != nil {
				return writeErr(err)
			}
		}
		span.SetAttributes(attribute.Int("extensions.applied", len(ids)))
		return nil
	})
}

// UpdateWitnesses re-resolves pending witnesses (and mined ones at or after
// afterHeight) and reorders dependent state.
func (s *State) UpdateWitnesses(ctx context.Context, resolver validation.ResolveWitness, afterHeight uint32) (res UpdateRes, err error) {
	ctx, span := s.startSpan(ctx, "persistence.UpdateWitnesses",
		attribute.Int64("after_height", int64(afterHeight)),
	)
	defer func() { endSpan(span, err) }()

	err = s.inTransaction(ctx, func() error {
		var uerr error
		res, uerr = s.provider.UpdateWitnesses(ctx, resolver, afterHeight)
		if uerr != nil {
			return writeErr(uerr)
		}
		return nil
	})
	if err != nil {
		return UpdateRes{}, err
	}
	span.SetAttributes(
		attribute.Int("witnesses.updated", len(res.Succeeded)),
		attribute.Int("witnesses.failed", len(res.Failed)),
	)
	return res, nil
}
