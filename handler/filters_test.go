// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"net/netip"
	"testing"

	"github.com/privarion/privarion/audit"
	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

// memorySink collects audit records in memory.
type memorySink struct {
	records []audit.Record
}

func (s *memorySink) Append(record audit.Record) error {
	s.records = append(s.records, record)
	return nil
}

func TestSuspiciousPathBlocker(t *testing.T) {
	blocker := NewSuspiciousPathBlocker(nil)

	tests := []struct {
		path string
		want event.Verdict
	}{
		{"/tmp/payload", event.Deny},
		{"/tmp", event.Deny},
		{"/private/tmp/dropper", event.Deny},
		{"/var/tmp/x", event.Deny},
		{"/tmpfiles/tool", event.Allow},
		{"/usr/bin/ls", event.Allow},
		{"/Applications/Safari.app/Contents/MacOS/Safari", event.Allow},
	}
	for _, test := range tests {
		got := blocker.HandleProcessExecution(context.Background(), execEvent(test.path), policy.Default())
		if got != test.want {
			t.Errorf("verdict for %q = %v, want %v", test.path, got, test.want)
		}
	}
}

func TestSuspiciousPathBlockerCustomPaths(t *testing.T) {
	blocker := NewSuspiciousPathBlocker(nil, "/opt/quarantine/")

	if got := blocker.HandleProcessExecution(context.Background(), execEvent("/opt/quarantine/tool"), policy.Default()); got != event.Deny {
		t.Errorf("custom path not enforced, verdict = %v", got)
	}
	// Custom paths replace the defaults.
	if got := blocker.HandleProcessExecution(context.Background(), execEvent("/tmp/payload"), policy.Default()); got != event.Allow {
		t.Errorf("default path still enforced with custom set, verdict = %v", got)
	}
}

func TestSensitiveFileMonitorDetectsAndAllows(t *testing.T) {
	sink := &memorySink{}
	monitor := NewSensitiveFileAccessMonitor(nil, sink)

	evt := &event.FileAccessEvent{
		ProcessID: 88,
		FilePath:  "/Users/alice/.ssh/id_rsa",
		Access:    event.AccessRead,
	}
	if got := monitor.HandleFileAccess(context.Background(), evt, policy.Default()); got != event.Allow {
		t.Errorf("verdict = %v, want allow (detection only)", got)
	}
	if len(sink.records) != 1 {
		t.Fatalf("recorded %d audit entries, want 1", len(sink.records))
	}
	record := sink.records[0]
	if record.Handler != sensitiveFileMonitorName {
		t.Errorf("record handler = %q, want %q", record.Handler, sensitiveFileMonitorName)
	}
	if record.Target != "/Users/alice/.ssh/id_rsa" {
		t.Errorf("record target = %q", record.Target)
	}
}

func TestSensitiveFileMonitorIgnoresOrdinaryFiles(t *testing.T) {
	sink := &memorySink{}
	monitor := NewSensitiveFileAccessMonitor(nil, sink)

	evt := &event.FileAccessEvent{ProcessID: 88, FilePath: "/Users/alice/notes.txt"}
	if got := monitor.HandleFileAccess(context.Background(), evt, policy.Default()); got != event.Allow {
		t.Errorf("verdict = %v, want allow", got)
	}
	if len(sink.records) != 0 {
		t.Errorf("ordinary file produced %d audit entries", len(sink.records))
	}
}

func TestSensitiveFileMonitorCaseInsensitive(t *testing.T) {
	monitor := NewSensitiveFileAccessMonitor(nil, nil, "Password")
	sinkless := &event.FileAccessEvent{ProcessID: 1, FilePath: "/data/PASSWORDS.csv"}
	if got := monitor.HandleFileAccess(context.Background(), sinkless, policy.Default()); got != event.Allow {
		t.Errorf("verdict = %v, want allow", got)
	}
	// Matching is exercised through the blocklist hit being logged;
	// verdict stays allow either way, so assert via a sink.
	sink := &memorySink{}
	monitor = NewSensitiveFileAccessMonitor(nil, sink, "Password")
	monitor.HandleFileAccess(context.Background(), sinkless, policy.Default())
	if len(sink.records) != 1 {
		t.Errorf("case-insensitive match not detected")
	}
}

func networkEvent(destination string) *event.NetworkEvent {
	return &event.NetworkEvent{
		ProcessID:       300,
		ProcessPath:     "/Applications/TestApp.app/Contents/MacOS/TestApp",
		DestinationIP:   netip.MustParseAddr(destination),
		DestinationPort: 443,
		Proto:           event.ProtocolTCP,
	}
}

func TestNetworkPolicyHandlerActions(t *testing.T) {
	sink := &memorySink{}
	h := NewNetworkPolicyHandler(nil, sink)

	blockPolicy := policy.Default()
	blockPolicy.Network.Action = policy.FilterBlock
	if got := h.HandleNetwork(context.Background(), networkEvent("203.0.113.9"), blockPolicy); got != event.Deny {
		t.Errorf("block action verdict = %v, want deny", got)
	}

	monitorPolicy := policy.Default()
	monitorPolicy.Network.Action = policy.FilterMonitor
	if got := h.HandleNetwork(context.Background(), networkEvent("203.0.113.9"), monitorPolicy); got != event.Allow {
		t.Errorf("monitor action verdict = %v, want allow", got)
	}
	if len(sink.records) != 1 {
		t.Errorf("monitor action recorded %d audit entries, want 1", len(sink.records))
	}

	if got := h.HandleNetwork(context.Background(), networkEvent("203.0.113.9"), policy.Default()); got != event.Allow {
		t.Errorf("allow action verdict = %v, want allow", got)
	}
}

func dnsEvent(domain string) *event.DNSQueryEvent {
	return &event.DNSQueryEvent{
		ProcessID:   300,
		ProcessPath: "/Applications/TestApp.app/Contents/MacOS/TestApp",
		Domain:      domain,
		QueryType:   "A",
	}
}

func TestDNSPolicyHandlerBlockAll(t *testing.T) {
	h := NewDNSPolicyHandler(nil)
	pol := policy.Default()
	pol.DNS.Action = policy.DNSBlock

	if got := h.HandleDNSQuery(context.Background(), dnsEvent("example.com"), pol); got != event.Deny {
		t.Errorf("verdict = %v, want deny", got)
	}
}

func TestDNSPolicyHandlerCustomBlocklist(t *testing.T) {
	h := NewDNSPolicyHandler(nil)
	pol := policy.Default()
	pol.DNS.CustomBlocklist = []string{"tracker.io"}

	tests := []struct {
		domain string
		want   event.Verdict
	}{
		{"tracker.io", event.Deny},
		{"cdn.tracker.io", event.Deny},
		{"CDN.Tracker.IO.", event.Deny},
		{"nottracker.io", event.Allow},
		{"tracker.io.evil.com", event.Allow},
		{"example.com", event.Allow},
	}
	for _, test := range tests {
		if got := h.HandleDNSQuery(context.Background(), dnsEvent(test.domain), pol); got != test.want {
			t.Errorf("verdict for %q = %v, want %v", test.domain, got, test.want)
		}
	}
}

func TestDNSPolicyHandlerBuiltinLists(t *testing.T) {
	h := NewDNSPolicyHandler(nil)

	// Built-in lists apply only when the policy opts in.
	pol := policy.Default()
	if got := h.HandleDNSQuery(context.Background(), dnsEvent("stats.google-analytics.com"), pol); got != event.Allow {
		t.Errorf("tracking domain blocked without opt-in, verdict = %v", got)
	}

	pol.DNS.BlockTracking = true
	if got := h.HandleDNSQuery(context.Background(), dnsEvent("stats.google-analytics.com"), pol); got != event.Deny {
		t.Errorf("tracking domain not blocked, verdict = %v", got)
	}
	if got := h.HandleDNSQuery(context.Background(), dnsEvent("api.fingerprintjs.com"), pol); got != event.Allow {
		t.Errorf("fingerprinting domain blocked without opt-in, verdict = %v", got)
	}

	pol.DNS.BlockFingerprinting = true
	if got := h.HandleDNSQuery(context.Background(), dnsEvent("api.fingerprintjs.com"), pol); got != event.Deny {
		t.Errorf("fingerprinting domain not blocked, verdict = %v", got)
	}
}

func TestLoggingHandlerCoversAllCategoriesAndAllows(t *testing.T) {
	sink := &memorySink{}
	h := NewLoggingHandler(nil, sink)

	for _, category := range event.Categories() {
		if !h.CanHandle(category) {
			t.Errorf("logging handler cannot handle %v", category)
		}
	}

	ctx := context.Background()
	pol := policy.Default()
	if got := h.HandleProcessExecution(ctx, execEvent("/usr/bin/ls"), pol); got != event.Allow {
		t.Errorf("process verdict = %v, want allow", got)
	}
	if got := h.HandleFileAccess(ctx, &event.FileAccessEvent{FilePath: "/etc/hosts"}, pol); got != event.Allow {
		t.Errorf("file verdict = %v, want allow", got)
	}
	if got := h.HandleNetwork(ctx, networkEvent("198.51.100.2"), pol); got != event.Allow {
		t.Errorf("network verdict = %v, want allow", got)
	}
	if got := h.HandleDNSQuery(ctx, dnsEvent("example.com"), pol); got != event.Allow {
		t.Errorf("dns verdict = %v, want allow", got)
	}
	if len(sink.records) != 4 {
		t.Errorf("recorded %d audit entries, want 4", len(sink.records))
	}
}
