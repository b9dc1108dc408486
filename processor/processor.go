// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/handler"
	"github.com/privarion/privarion/lifecycle"
	"github.com/privarion/privarion/policy"
)

// DefaultBudget is the per-event mediation deadline when Options does
// not set one. The kernel boundary expects verdicts well under its
// own deadline; 100ms leaves headroom for reply transport.
const DefaultBudget = 100 * time.Millisecond

// Options configures a Processor.
type Options struct {
	// Budget bounds one Process call. Zero means DefaultBudget.
	Budget time.Duration

	// Logger receives mediation diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Processor mediates events: policy resolution, handler chain
// dispatch, verdict. Safe for concurrent use; the policy store and
// the handler chain carry their own synchronization.
type Processor struct {
	store  *policy.Store
	chain  *handler.Chain
	budget time.Duration
	logger *slog.Logger
}

// New returns a processor over the given store and chain.
func New(store *policy.Store, chain *handler.Chain, options Options) *Processor {
	if options.Budget <= 0 {
		options.Budget = DefaultBudget
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if chain == nil {
		chain = handler.NewChain()
	}
	return &Processor{
		store:  store,
		chain:  chain,
		budget: options.Budget,
		logger: options.Logger,
	}
}

// RegisterHandler appends a handler to the chain. Takes effect for
// subsequently processed events.
func (p *Processor) RegisterHandler(h handler.Handler) {
	p.chain.Register(h)
}

// Process mediates one event and always returns a usable verdict.
// When the handler chain overruns the budget (or the caller's context
// is cancelled first), the verdict is Deny and the error is a
// lifecycle error of kind eventProcessingTimeout — the caller can
// report it, but the verdict already fails closed.
func (p *Processor) Process(ctx context.Context, evt event.Event) (event.Verdict, error) {
	pol := p.store.Evaluate(evt.Target())

	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	verdicts := make(chan event.Verdict, 1)
	go func() {
		verdicts <- p.chain.Dispatch(ctx, evt, pol)
	}()

	select {
	case verdict := <-verdicts:
		return verdict, nil
	case <-ctx.Done():
		p.logger.Warn("mediation deadline exceeded, denying",
			"category", evt.Category().String(),
			"pid", evt.PID(),
			"target", evt.Target(),
			"policy", pol.Identifier,
			"budget", p.budget)
		return event.Deny, lifecycle.WrapError(lifecycle.KindEventProcessingTimeout, ctx.Err(),
			"no verdict within %v for %s event", p.budget, evt.Category())
	}
}

var _ lifecycle.Mediator = (*Processor)(nil)
