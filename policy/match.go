// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "strings"

// Matches reports whether a stored identifier covers a target. An
// identifier matches when it equals the target, or when it is a prefix
// of the target ending at a segment boundary — the next character of
// the target must be '/' (path hierarchy) or '.' (bundle-id
// hierarchy). This keeps "/tmp" from covering "/tmpfiles" and
// "com.example" from covering "com.example2".
//
// The wildcard identifier "*" matches every target.
func Matches(identifier, target string) bool {
	if identifier == Wildcard {
		return true
	}
	if identifier == "" || target == "" {
		return false
	}

	// Identifiers written with a trailing separator cover the same
	// subtree as without one.
	identifier = strings.TrimRight(identifier, "/")

	if identifier == target {
		return true
	}
	if !strings.HasPrefix(target, identifier) {
		return false
	}

	next := target[len(identifier)]
	return next == '/' || next == '.'
}

// moreSpecific reports whether identifier a resolves ahead of
// identifier b. Longer identifiers win; equal lengths break to the
// lexicographically smaller identifier so resolution order is total
// and deterministic.
func moreSpecific(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}
