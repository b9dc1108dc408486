// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

const dnsPolicyHandlerName = "dnsPolicyHandler"

// trackingDomains are the built-in analytics and advertising domains
// blocked when a policy sets block_tracking.
var trackingDomains = []string{
	"doubleclick.net",
	"google-analytics.com",
	"googletagmanager.com",
	"adservice.google.com",
	"facebook.net",
	"graph.facebook.com",
	"ads.twitter.com",
	"scorecardresearch.com",
	"segment.io",
	"mixpanel.com",
	"amplitude.com",
	"branch.io",
}

// fingerprintingDomains are the built-in device fingerprinting
// services blocked when a policy sets block_fingerprinting.
var fingerprintingDomains = []string{
	"fingerprintjs.com",
	"fpjs.io",
	"iovation.com",
	"deviceatlas.com",
	"51degrees.com",
}

// DNSPolicyHandler enforces the resolved policy's DNS filtering on
// query events: the policy-wide action, the custom blocklist, and the
// built-in tracker and fingerprinter lists. Handles dnsQuery only.
type DNSPolicyHandler struct {
	NopHandler
	logger *slog.Logger
}

// NewDNSPolicyHandler returns a handler applying per-policy DNS
// filtering.
func NewDNSPolicyHandler(logger *slog.Logger) *DNSPolicyHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DNSPolicyHandler{logger: logger}
}

// Name implements Handler.
func (h *DNSPolicyHandler) Name() string { return dnsPolicyHandlerName }

// CanHandle implements Handler.
func (h *DNSPolicyHandler) CanHandle(category event.Category) bool {
	return category == event.CategoryDNSQuery
}

// HandleDNSQuery implements Handler.
func (h *DNSPolicyHandler) HandleDNSQuery(ctx context.Context, evt *event.DNSQueryEvent, pol policy.ProtectionPolicy) event.Verdict {
	if pol.DNS.Action == policy.DNSBlock {
		h.deny(ctx, evt, pol, "dns blocked by policy", "")
		return event.Deny
	}

	if suffix, ok := matchDomain(evt.Domain, pol.DNS.CustomBlocklist); ok {
		h.deny(ctx, evt, pol, "dns query matched custom blocklist", suffix)
		return event.Deny
	}
	if pol.DNS.BlockTracking {
		if suffix, ok := matchDomain(evt.Domain, trackingDomains); ok {
			h.deny(ctx, evt, pol, "dns query matched tracking blocklist", suffix)
			return event.Deny
		}
	}
	if pol.DNS.BlockFingerprinting {
		if suffix, ok := matchDomain(evt.Domain, fingerprintingDomains); ok {
			h.deny(ctx, evt, pol, "dns query matched fingerprinting blocklist", suffix)
			return event.Deny
		}
	}
	return event.Allow
}

func (h *DNSPolicyHandler) deny(ctx context.Context, evt *event.DNSQueryEvent, pol policy.ProtectionPolicy, message, suffix string) {
	attributes := []any{
		"pid", evt.ProcessID,
		"process", evt.ProcessPath,
		"domain", evt.Domain,
		"policy", pol.Identifier,
	}
	if suffix != "" {
		attributes = append(attributes, "matched", suffix)
	}
	h.logger.WarnContext(ctx, message, attributes...)
}

// matchDomain reports whether domain equals or is a subdomain of any
// entry. Matching is case-insensitive, ignores a trailing dot on the
// queried domain, and respects label boundaries: "tracker.io" matches
// "cdn.tracker.io" but not "nottracker.io".
func matchDomain(domain string, entries []string) (string, bool) {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	for _, entry := range entries {
		suffix := strings.ToLower(strings.TrimSuffix(entry, "."))
		if suffix == "" {
			continue
		}
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return entry, true
		}
	}
	return "", false
}

var _ Handler = (*DNSPolicyHandler)(nil)
