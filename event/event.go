// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"net/netip"
)

// Category identifies the kind of kernel event. Handlers declare which
// categories they can render a verdict for.
type Category int

const (
	// CategoryProcessExecution covers exec of a new process image.
	CategoryProcessExecution Category = iota

	// CategoryFileAccess covers file open for read or write.
	CategoryFileAccess

	// CategoryNetworkConnection covers outbound connection establishment.
	CategoryNetworkConnection

	// CategoryDNSQuery covers domain name resolution.
	CategoryDNSQuery
)

// String returns the wire name of the category. These names are
// protocol constants — they appear in bridge frames, audit records,
// and configuration files.
func (c Category) String() string {
	switch c {
	case CategoryProcessExecution:
		return "processExecution"
	case CategoryFileAccess:
		return "fileAccess"
	case CategoryNetworkConnection:
		return "networkConnection"
	case CategoryDNSQuery:
		return "dnsQuery"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ParseCategory parses a category from its wire name.
func ParseCategory(name string) (Category, error) {
	switch name {
	case "processExecution":
		return CategoryProcessExecution, nil
	case "fileAccess":
		return CategoryFileAccess, nil
	case "networkConnection":
		return CategoryNetworkConnection, nil
	case "dnsQuery":
		return CategoryDNSQuery, nil
	default:
		return 0, fmt.Errorf("unknown event category: %q", name)
	}
}

// Categories returns all event categories in declaration order.
func Categories() []Category {
	return []Category{
		CategoryProcessExecution,
		CategoryFileAccess,
		CategoryNetworkConnection,
		CategoryDNSQuery,
	}
}

// Verdict is the outcome of mediating a single event. The zero value
// is Deny so that an uninitialized or failed evaluation fails closed.
type Verdict int

const (
	// Deny means the originating operation must not proceed.
	Deny Verdict = iota

	// Allow means the originating operation may proceed.
	Allow

	// AllowWithModification means the operation may proceed with
	// parameters rewritten by a handler. The bridge reply carries only
	// allow/deny, so this collapses to Allow at the kernel boundary.
	AllowWithModification
)

// String returns "deny", "allow", or "allowWithModification".
func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case AllowWithModification:
		return "allowWithModification"
	default:
		return "deny"
	}
}

// Event is one decoded kernel event. Concrete types are
// ProcessExecutionEvent, FileAccessEvent, NetworkEvent, and
// DNSQueryEvent.
type Event interface {
	// Category reports which kind of event this is.
	Category() Category

	// PID is the process the event originated from.
	PID() int32

	// Target is the identifier used for policy resolution: the
	// executable path for exec events, the file path for file events,
	// and the instigating process image path for network and DNS
	// events.
	Target() string
}

// AccessType distinguishes read from write file access.
type AccessType int

const (
	// AccessRead is a read-only open.
	AccessRead AccessType = iota

	// AccessWrite is an open that can modify the file.
	AccessWrite
)

// String returns "read" or "write".
func (a AccessType) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// Protocol is the transport protocol of a network event.
type Protocol int

const (
	// ProtocolTCP is a TCP connection.
	ProtocolTCP Protocol = iota

	// ProtocolUDP is a UDP flow.
	ProtocolUDP
)

// String returns "tcp" or "udp".
func (p Protocol) String() string {
	if p == ProtocolUDP {
		return "udp"
	}
	return "tcp"
}

// ProcessExecutionEvent reports that a process is about to exec a new
// image. The originating exec is held pending the verdict.
type ProcessExecutionEvent struct {
	ProcessID       int32
	ExecutablePath  string
	Arguments       []string
	Environment     map[string]string
	ParentProcessID int32
}

// Category implements Event.
func (e *ProcessExecutionEvent) Category() Category { return CategoryProcessExecution }

// PID implements Event.
func (e *ProcessExecutionEvent) PID() int32 { return e.ProcessID }

// Target implements Event. Policy resolution for exec events uses the
// executable path.
func (e *ProcessExecutionEvent) Target() string { return e.ExecutablePath }

// FileAccessEvent reports that a process is about to open a file.
type FileAccessEvent struct {
	ProcessID int32
	FilePath  string
	Access    AccessType
}

// Category implements Event.
func (e *FileAccessEvent) Category() Category { return CategoryFileAccess }

// PID implements Event.
func (e *FileAccessEvent) PID() int32 { return e.ProcessID }

// Target implements Event. Policy resolution for file events uses the
// accessed path.
func (e *FileAccessEvent) Target() string { return e.FilePath }

// NetworkEvent reports that a process is about to establish a
// connection. ProcessPath is the image path of the connection-owning
// process; the bridge resolves it so policy lookup does not need a
// pid-to-path table on the authorization path.
type NetworkEvent struct {
	ProcessID       int32
	ProcessPath     string
	SourceIP        netip.Addr
	SourcePort      uint16
	DestinationIP   netip.Addr
	DestinationPort uint16
	Proto           Protocol
}

// Category implements Event.
func (e *NetworkEvent) Category() Category { return CategoryNetworkConnection }

// PID implements Event.
func (e *NetworkEvent) PID() int32 { return e.ProcessID }

// Target implements Event. Policy resolution for network events uses
// the owning process image path.
func (e *NetworkEvent) Target() string { return e.ProcessPath }

// DNSQueryEvent reports that a process is about to resolve a domain.
// ProcessPath is the image path of the querying process.
type DNSQueryEvent struct {
	ProcessID   int32
	ProcessPath string
	Domain      string
	QueryType   string
}

// Category implements Event.
func (e *DNSQueryEvent) Category() Category { return CategoryDNSQuery }

// PID implements Event.
func (e *DNSQueryEvent) PID() int32 { return e.ProcessID }

// Target implements Event. Policy resolution for DNS events uses the
// querying process image path.
func (e *DNSQueryEvent) Target() string { return e.ProcessPath }

// Compile-time interface checks.
var (
	_ Event = (*ProcessExecutionEvent)(nil)
	_ Event = (*FileAccessEvent)(nil)
	_ Event = (*NetworkEvent)(nil)
	_ Event = (*DNSQueryEvent)(nil)
)
