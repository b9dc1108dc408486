// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sort"
	"sync"
)

// Store holds protection policies keyed by identifier and resolves the
// applicable policy for a target by specificity matching.
//
// Read operations (Evaluate, Get, Identifiers) acquire a read lock;
// Add and Remove acquire a write lock. Resolution is a linear scan
// over the stored identifiers — with policies numbering in the low
// hundreds this stays well under a millisecond, and the scan preserves
// the documented specificity tie-break without an auxiliary structure.
type Store struct {
	mu       sync.RWMutex
	policies map[string]ProtectionPolicy
}

// NewStore creates a store seeded with the implicit default policy.
func NewStore() *Store {
	store := &Store{
		policies: make(map[string]ProtectionPolicy),
	}
	store.policies[Wildcard] = Default()
	return store
}

// Add inserts or replaces the policy stored under policy.Identifier.
// Last write wins; there are no error conditions. The store keeps a
// deep copy, so later mutation of the caller's value has no effect.
// A policy with an empty identifier is ignored.
func (s *Store) Add(policy ProtectionPolicy) {
	if policy.Identifier == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.Identifier] = policy.Clone()
}

// Remove deletes the policy stored under identifier. Removing the
// default "*" policy is refused — exactly one default always exists.
// Returns true when a policy was removed.
func (s *Store) Remove(identifier string) bool {
	if identifier == Wildcard {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[identifier]; !ok {
		return false
	}
	delete(s.policies, identifier)
	return true
}

// Evaluate returns the policy whose identifier is the most specific
// match for target: the longest stored identifier that equals the
// target or is a segment-boundary prefix of it. When no stored
// identifier matches, the default "*" policy is returned. Evaluate
// never fails.
//
// The returned value is a deep copy; callers may hold or mutate it
// freely without affecting the store.
func (s *Store) Evaluate(target string) ProtectionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best, found := "", false
	for identifier := range s.policies {
		if identifier == Wildcard {
			continue
		}
		if !Matches(identifier, target) {
			continue
		}
		if !found || moreSpecific(identifier, best) {
			best, found = identifier, true
		}
	}

	if !found {
		return s.policies[Wildcard].Clone()
	}
	return s.policies[best].Clone()
}

// Get returns the policy stored under the exact identifier, without
// specificity matching. The second result is false when no policy is
// stored under that identifier.
func (s *Store) Get(identifier string) (ProtectionPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[identifier]
	if !ok {
		return ProtectionPolicy{}, false
	}
	return policy.Clone(), true
}

// Identifiers returns the stored identifiers in sorted order,
// including the default "*".
func (s *Store) Identifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identifiers := make([]string, 0, len(s.policies))
	for identifier := range s.policies {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

// Len returns the number of stored policies, including the default.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}
