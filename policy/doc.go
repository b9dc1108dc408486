// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the protection policy store: hierarchical
// policies keyed by a target identifier (a filesystem path or bundle
// id) and resolved by specificity matching.
//
// # Specificity
//
// A stored identifier matches a target when it equals the target or is
// a path/bundle-id prefix of it at a segment boundary:
//
//	"/Applications"               matches "/Applications/TestApp.app/Contents/MacOS/TestApp"
//	"/Applications/TestApp.app"   matches the same target, more specifically
//	"com.example"                 matches "com.example.app"
//	"/tmp"                        does NOT match "/tmpfiles"
//
// When several stored identifiers match, the longest wins. Distinct
// identifiers of equal length can both match only in degenerate cases;
// the tie then breaks to the lexicographically smaller identifier so
// resolution stays deterministic. When nothing matches, the implicit
// default policy (identifier "*", protection level basic) is returned.
// Evaluate never fails.
//
// # Concurrency
//
// The Store supports unbounded concurrent Evaluate calls alongside
// occasional Add calls. Policies are immutable value objects: Add
// stores a deep copy and Evaluate returns a deep copy, so a reader
// observes either the pre-update or the post-update policy, never a
// half-written one. High read frequency and low write frequency is
// the expected shape — every kernel event resolves a policy, while
// writes arrive only from administrative configuration reloads.
package policy
