// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/privarion/privarion/event"
)

// State is the position of a Client in its lifecycle.
type State int

const (
	// StateUninitialized is the zero state: no connection exists.
	StateUninitialized State = iota

	// StateInitialized means the connection to the event source is
	// established but no subscription is open.
	StateInitialized

	// StateSubscribed means events are flowing.
	StateSubscribed

	// StateUnsubscribed means a previously open subscription was torn
	// down and the connection released.
	StateUnsubscribed

	// StateError means an initialize or subscribe failed, or the
	// connection dropped. The message is available via Client.State.
	StateError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "error"
	}
}

// HandlerFunc receives one decoded event and returns the verdict the
// source should enforce.
type HandlerFunc func(ctx context.Context, evt event.Event) (event.Verdict, error)

// EventSource is the connection to the kernel event bridge. The
// production implementation lives in the bridge package; tests supply
// fakes.
type EventSource interface {
	// Connect establishes the connection. It classifies failures:
	// permission problems surface as KindFullDiskAccessDenied or
	// KindEntitlementMissing, everything else as
	// KindClientInitializationFailed.
	Connect(ctx context.Context) error

	// Subscribe opens the event stream for the given categories and
	// delivers each event to handle. Delivery stops when Unsubscribe
	// is called or the connection drops.
	Subscribe(ctx context.Context, categories []event.Category, handle HandlerFunc) error

	// Unsubscribe stops delivery and releases the connection. Safe to
	// call when no subscription is open.
	Unsubscribe() error

	// Done reports connection loss: the channel is closed (or receives
	// an error) when the source disconnects outside an Unsubscribe.
	Done() <-chan error
}

// Mediator renders a verdict for one event. The processor package
// implements it.
type Mediator interface {
	Process(ctx context.Context, evt event.Event) (event.Verdict, error)
}

// Client is the lifecycle state machine guarding an EventSource.
// Initialize and Unsubscribe are idempotent; Subscribe without a
// prior successful Initialize fails deterministically. All methods
// are safe for concurrent use.
type Client struct {
	source   EventSource
	mediator Mediator
	logger   *slog.Logger

	mu           sync.Mutex
	state        State
	errorMessage string
	watchCancel  context.CancelFunc

	// disconnected is closed exactly once, when a disconnect moves the
	// client to StateError. The source's Done channel delivers a single
	// value which the watcher consumes; this channel is the client's
	// outward signal, safe for any number of observers.
	disconnected     chan struct{}
	disconnectClosed bool
}

// NewClient returns an uninitialized client over the given source and
// mediator.
func NewClient(source EventSource, mediator Mediator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		source:       source,
		mediator:     mediator,
		logger:       logger,
		disconnected: make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client loses its
// subscription to a disconnect. Unlike the source's Done channel,
// which delivers one value to one receiver, this channel is closed
// and therefore observable by any number of callers. After it fires,
// State reports StateError with the disconnect message.
func (c *Client) Done() <-chan struct{} {
	return c.disconnected
}

// State returns the current state and, for StateError, the failure
// message.
func (c *Client) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.errorMessage
}

// IsActive reports whether the client is currently subscribed.
func (c *Client) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateSubscribed
}

// Initialize establishes the connection to the event source.
// Idempotent: calling it when already initialized (or subscribed) is
// a no-op. A failure moves the client to StateError and is returned
// to the caller; retry is the caller's decision.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateInitialized, StateSubscribed:
		return nil
	case StateUninitialized, StateUnsubscribed, StateError:
	}

	if err := c.source.Connect(ctx); err != nil {
		c.setErrorLocked(err)
		return err
	}
	c.state = StateInitialized
	c.errorMessage = ""
	c.logger.Info("event source initialized")
	return nil
}

// Subscribe opens the event stream for the given categories and
// routes each event through the mediator. It fails with
// KindClientDisconnected when the client was never initialized, and
// with KindSubscriptionFailed when the source rejects the
// subscription.
func (c *Client) Subscribe(ctx context.Context, categories []event.Category) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSubscribed:
		return nil
	case StateInitialized:
	default:
		err := NewError(KindClientDisconnected,
			"subscribe requires an initialized client, state is %s", c.state)
		return err
	}
	if len(categories) == 0 {
		err := NewError(KindSubscriptionFailed, "no event categories requested")
		c.setErrorLocked(err)
		return err
	}

	if err := c.source.Subscribe(ctx, categories, c.mediate); err != nil {
		wrapped := err
		if !IsKind(err, KindSubscriptionFailed) {
			wrapped = WrapError(KindSubscriptionFailed, err, "opening event subscription")
		}
		c.setErrorLocked(wrapped)
		return wrapped
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	c.watchCancel = cancel
	go c.watchDisconnect(watchCtx)

	c.state = StateSubscribed
	c.errorMessage = ""
	c.logger.Info("event subscription opened", "categories", categoryNames(categories))
	return nil
}

// Unsubscribe stops event delivery and releases the connection.
// Idempotent: safe to call in any state, including repeatedly.
func (c *Client) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubscribed {
		// Initialize, or a Subscribe that failed after it, can leave
		// the connection open. Release it; the source tolerates
		// Unsubscribe with no subscription open.
		if c.state == StateInitialized || c.state == StateError {
			if c.watchCancel != nil {
				c.watchCancel()
				c.watchCancel = nil
			}
			if err := c.source.Unsubscribe(); err != nil {
				c.setErrorLocked(err)
				return err
			}
			c.state = StateUnsubscribed
			c.errorMessage = ""
		}
		return nil
	}

	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	if err := c.source.Unsubscribe(); err != nil {
		c.setErrorLocked(err)
		return err
	}
	c.state = StateUnsubscribed
	c.logger.Info("event subscription closed")
	return nil
}

// mediate is the HandlerFunc handed to the source: it runs one event
// through the mediator. Mediation errors still carry a verdict (the
// processor fails closed), so the verdict is always forwarded.
func (c *Client) mediate(ctx context.Context, evt event.Event) (event.Verdict, error) {
	verdict, err := c.mediator.Process(ctx, evt)
	if err != nil {
		c.logger.Warn("event mediation degraded",
			"category", evt.Category().String(),
			"pid", evt.PID(),
			"verdict", verdict.String(),
			"error", err)
	}
	return verdict, err
}

// watchDisconnect observes the source's Done channel and moves the
// client to StateError on an unexpected disconnect. The core does not
// auto-reconnect.
func (c *Client) watchDisconnect(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case err, ok := <-c.source.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != StateSubscribed {
			return
		}
		if err == nil {
			if !ok {
				err = NewError(KindClientDisconnected, "event source closed the connection")
			} else {
				err = NewError(KindClientDisconnected, "event source disconnected")
			}
		} else if !IsKind(err, KindClientDisconnected) {
			err = WrapError(KindClientDisconnected, err, "event source disconnected")
		}
		c.setErrorLocked(err)
		if !c.disconnectClosed {
			c.disconnectClosed = true
			close(c.disconnected)
		}
		c.logger.Error("event source disconnected", "error", err)
	}
}

// setErrorLocked records a failure. Caller holds the lock.
func (c *Client) setErrorLocked(err error) {
	c.state = StateError
	c.errorMessage = err.Error()
}

func categoryNames(categories []event.Category) []string {
	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.String()
	}
	return names
}
