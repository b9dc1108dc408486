// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"fmt"
	"net/netip"

	"github.com/privarion/privarion/event"
)

// subscribeFrame opens the event stream for the named categories.
type subscribeFrame struct {
	Categories []string `cbor:"categories"`
}

// ackFrame is the bridge's reply to a subscribe frame.
type ackFrame struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

// eventFrame is one event from the bridge. The category field
// discriminates which of the remaining fields are meaningful. Token
// is nonzero for authorization-class events, which expect a
// verdictFrame echoing it; token zero marks a notification-class
// event with no reply.
type eventFrame struct {
	Token    uint64 `cbor:"token,omitempty"`
	Category string `cbor:"category"`
	PID      int32  `cbor:"pid"`

	// processExecution
	ParentPID      int32             `cbor:"parent_pid,omitempty"`
	ExecutablePath string            `cbor:"executable_path,omitempty"`
	Arguments      []string          `cbor:"arguments,omitempty"`
	Environment    map[string]string `cbor:"environment,omitempty"`

	// fileAccess
	FilePath string `cbor:"file_path,omitempty"`
	Access   string `cbor:"access,omitempty"`

	// networkConnection and dnsQuery
	ProcessPath string `cbor:"process_path,omitempty"`

	// networkConnection
	SourceIP        string `cbor:"source_ip,omitempty"`
	SourcePort      uint16 `cbor:"source_port,omitempty"`
	DestinationIP   string `cbor:"destination_ip,omitempty"`
	DestinationPort uint16 `cbor:"destination_port,omitempty"`
	Protocol        string `cbor:"protocol,omitempty"`

	// dnsQuery
	Domain    string `cbor:"domain,omitempty"`
	QueryType string `cbor:"query_type,omitempty"`
}

// verdictFrame is the reply to an authorization-class event frame.
type verdictFrame struct {
	Token uint64 `cbor:"token"`
	Allow bool   `cbor:"allow"`
}

// decodeEvent converts a wire frame into the typed event for its
// category.
func decodeEvent(frame eventFrame) (event.Event, error) {
	category, err := event.ParseCategory(frame.Category)
	if err != nil {
		return nil, err
	}

	switch category {
	case event.CategoryProcessExecution:
		return &event.ProcessExecutionEvent{
			ProcessID:       frame.PID,
			ExecutablePath:  frame.ExecutablePath,
			Arguments:       frame.Arguments,
			Environment:     frame.Environment,
			ParentProcessID: frame.ParentPID,
		}, nil

	case event.CategoryFileAccess:
		access := event.AccessRead
		switch frame.Access {
		case "read", "":
		case "write":
			access = event.AccessWrite
		default:
			return nil, fmt.Errorf("unknown file access type: %q", frame.Access)
		}
		return &event.FileAccessEvent{
			ProcessID: frame.PID,
			FilePath:  frame.FilePath,
			Access:    access,
		}, nil

	case event.CategoryNetworkConnection:
		source, err := parseAddr(frame.SourceIP)
		if err != nil {
			return nil, fmt.Errorf("parsing source address: %w", err)
		}
		destination, err := parseAddr(frame.DestinationIP)
		if err != nil {
			return nil, fmt.Errorf("parsing destination address: %w", err)
		}
		protocol := event.ProtocolTCP
		switch frame.Protocol {
		case "tcp", "":
		case "udp":
			protocol = event.ProtocolUDP
		default:
			return nil, fmt.Errorf("unknown network protocol: %q", frame.Protocol)
		}
		return &event.NetworkEvent{
			ProcessID:       frame.PID,
			ProcessPath:     frame.ProcessPath,
			SourceIP:        source,
			SourcePort:      frame.SourcePort,
			DestinationIP:   destination,
			DestinationPort: frame.DestinationPort,
			Proto:           protocol,
		}, nil

	case event.CategoryDNSQuery:
		return &event.DNSQueryEvent{
			ProcessID:   frame.PID,
			ProcessPath: frame.ProcessPath,
			Domain:      frame.Domain,
			QueryType:   frame.QueryType,
		}, nil

	default:
		return nil, fmt.Errorf("unhandled event category: %v", category)
	}
}

// parseAddr parses an address, tolerating absence (the bridge omits
// addresses it could not resolve).
func parseAddr(text string) (netip.Addr, error) {
	if text == "" {
		return netip.Addr{}, nil
	}
	return netip.ParseAddr(text)
}

// encodeEvent converts a typed event into its wire frame. Used by the
// test bridge; the daemon only decodes.
func encodeEvent(token uint64, evt event.Event) eventFrame {
	frame := eventFrame{
		Token:    token,
		Category: evt.Category().String(),
		PID:      evt.PID(),
	}
	switch typed := evt.(type) {
	case *event.ProcessExecutionEvent:
		frame.ParentPID = typed.ParentProcessID
		frame.ExecutablePath = typed.ExecutablePath
		frame.Arguments = typed.Arguments
		frame.Environment = typed.Environment
	case *event.FileAccessEvent:
		frame.FilePath = typed.FilePath
		frame.Access = typed.Access.String()
	case *event.NetworkEvent:
		frame.ProcessPath = typed.ProcessPath
		if typed.SourceIP.IsValid() {
			frame.SourceIP = typed.SourceIP.String()
		}
		frame.SourcePort = typed.SourcePort
		if typed.DestinationIP.IsValid() {
			frame.DestinationIP = typed.DestinationIP.String()
		}
		frame.DestinationPort = typed.DestinationPort
		frame.Protocol = typed.Proto.String()
	case *event.DNSQueryEvent:
		frame.ProcessPath = typed.ProcessPath
		frame.Domain = typed.Domain
		frame.QueryType = typed.QueryType
	}
	return frame
}
