// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/lib/codec"
	"github.com/privarion/privarion/lifecycle"
)

// Source is the production lifecycle.EventSource: a CBOR frame stream
// over the bridge's Unix domain socket.
type Source struct {
	socketPath string
	logger     *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	encoder *codec.Encoder
	done    chan error
	closing bool
}

// NewSource returns a source for the bridge socket at socketPath.
func NewSource(socketPath string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{socketPath: socketPath, logger: logger}
}

// Connect implements lifecycle.EventSource. Failures are classified:
// a missing socket means the bridge is not running
// (clientInitializationFailed); a permission error on the socket
// means the process lacks the required disk access
// (fullDiskAccessDenied).
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	if err := s.checkSocket(); err != nil {
		return err
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", s.socketPath)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return lifecycle.WrapError(lifecycle.KindFullDiskAccessDenied, err,
				"bridge socket %s refused the connection", s.socketPath)
		}
		return lifecycle.WrapError(lifecycle.KindClientInitializationFailed, err,
			"connecting to bridge socket %s", s.socketPath)
	}

	s.conn = conn
	s.encoder = codec.NewEncoder(conn)
	s.done = make(chan error, 1)
	s.closing = false
	return nil
}

// checkSocket validates the bridge socket before dialing: it must
// exist and be owned by root or the current user. A socket owned by
// anyone else is not the bridge. Caller holds the lock.
func (s *Source) checkSocket() error {
	var stat unix.Stat_t
	if err := unix.Stat(s.socketPath, &stat); err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return lifecycle.NewError(lifecycle.KindClientInitializationFailed,
				"bridge socket %s does not exist (is the bridge running?)", s.socketPath)
		case errors.Is(err, unix.EACCES):
			return lifecycle.WrapError(lifecycle.KindFullDiskAccessDenied, err,
				"bridge socket %s is not accessible", s.socketPath)
		default:
			return lifecycle.WrapError(lifecycle.KindClientInitializationFailed, err,
				"stat bridge socket %s", s.socketPath)
		}
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return lifecycle.NewError(lifecycle.KindClientInitializationFailed,
			"%s is not a socket", s.socketPath)
	}
	if owner := int(stat.Uid); owner != 0 && owner != os.Geteuid() {
		return lifecycle.NewError(lifecycle.KindClientInitializationFailed,
			"bridge socket %s is owned by uid %d, want root or uid %d",
			s.socketPath, owner, os.Geteuid())
	}
	return nil
}

// Subscribe implements lifecycle.EventSource: it sends the subscribe
// frame, waits for the bridge's acknowledgment, and starts the read
// loop delivering events to handle.
func (s *Source) Subscribe(ctx context.Context, categories []event.Category, handle lifecycle.HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return lifecycle.NewError(lifecycle.KindClientDisconnected, "subscribe before connect")
	}

	names := make([]string, len(categories))
	for i, category := range categories {
		names[i] = category.String()
	}
	if err := s.encoder.Encode(subscribeFrame{Categories: names}); err != nil {
		return lifecycle.WrapError(lifecycle.KindSubscriptionFailed, err, "sending subscribe frame")
	}

	decoder := codec.NewDecoder(s.conn)
	var ack ackFrame
	if err := decoder.Decode(&ack); err != nil {
		return lifecycle.WrapError(lifecycle.KindSubscriptionFailed, err, "reading subscribe acknowledgment")
	}
	if !ack.OK {
		return lifecycle.NewError(lifecycle.KindSubscriptionFailed, "bridge rejected subscription: %s", ack.Error)
	}

	go s.readLoop(decoder, handle)
	return nil
}

// readLoop decodes event frames and mediates each one. Authorization
// frames (nonzero token) get a verdict reply; notification frames do
// not. The loop exits on decode failure and reports the disconnect on
// the done channel unless Unsubscribe initiated the close.
func (s *Source) readLoop(decoder *codec.Decoder, handle lifecycle.HandlerFunc) {
	for {
		var frame eventFrame
		if err := decoder.Decode(&frame); err != nil {
			s.reportDisconnect(err)
			return
		}

		evt, err := decodeEvent(frame)
		if err != nil {
			// An undecodable authorization frame still needs a reply;
			// fail closed.
			s.logger.Error("dropping undecodable event frame",
				"category", frame.Category, "error", err)
			if frame.Token != 0 {
				s.reply(frame.Token, event.Deny)
			}
			continue
		}

		verdict, err := handle(context.Background(), evt)
		if err != nil {
			s.logger.Warn("mediation returned error",
				"category", frame.Category, "verdict", verdict.String(), "error", err)
		}
		if frame.Token != 0 {
			s.reply(frame.Token, verdict)
		}
	}
}

// reply sends a verdict frame. The wire verdict is binary: anything
// other than deny allows.
func (s *Source) reply(token uint64, verdict event.Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	frame := verdictFrame{Token: token, Allow: verdict != event.Deny}
	if err := s.encoder.Encode(frame); err != nil {
		s.logger.Error("sending verdict frame", "token", token, "error", err)
	}
}

// reportDisconnect delivers a read-loop exit to the done channel. A
// close initiated by Unsubscribe is expected and not reported as an
// error.
func (s *Source) reportDisconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.conn = nil
	s.encoder = nil
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		err = lifecycle.NewError(lifecycle.KindClientDisconnected, "bridge closed the connection")
	} else {
		err = lifecycle.WrapError(lifecycle.KindClientDisconnected, err, "reading from bridge")
	}
	select {
	case s.done <- err:
	default:
	}
}

// Unsubscribe implements lifecycle.EventSource. It closes the
// connection, which terminates the read loop. Safe to call when not
// connected.
func (s *Source) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	s.closing = true
	err := s.conn.Close()
	s.conn = nil
	s.encoder = nil
	if err != nil {
		return fmt.Errorf("closing bridge connection: %w", err)
	}
	return nil
}

// Done implements lifecycle.EventSource.
func (s *Source) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		// Never connected; a nil channel would block forever, which is
		// the right behavior for "no disconnect can happen", but hand
		// out a real one so callers can select on it uniformly.
		s.done = make(chan error, 1)
	}
	return s.done
}

var _ lifecycle.EventSource = (*Source)(nil)
