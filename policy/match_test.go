// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "testing"

func TestMatches(t *testing.T) {
	cases := []struct {
		identifier string
		target     string
		want       bool
	}{
		// Exact matches.
		{"/Applications/TestApp.app", "/Applications/TestApp.app", true},
		{"com.example.app", "com.example.app", true},

		// Path hierarchy.
		{"/Applications", "/Applications/TestApp.app/Contents/MacOS/TestApp", true},
		{"/Applications/", "/Applications/TestApp.app", true},
		{"/usr/bin", "/usr/bin/ls", true},
		{"/usr/bin/ls", "/usr/bin", false},

		// Bundle-id hierarchy.
		{"com.example", "com.example.app", true},
		{"com.example", "com.example2", false},

		// Segment boundaries: a prefix inside a segment is not a match.
		{"/tmp", "/tmpfiles", false},
		{"/Applications/Test", "/Applications/TestApp.app", false},

		// Wildcard.
		{"*", "/anything/at/all", true},
		{"*", "", true},

		// Degenerate inputs.
		{"", "/usr/bin/ls", false},
		{"/usr/bin", "", false},
	}

	for _, c := range cases {
		if got := Matches(c.identifier, c.target); got != c.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", c.identifier, c.target, got, c.want)
		}
	}
}

func TestMoreSpecific(t *testing.T) {
	if !moreSpecific("/Applications/TestApp.app", "/Applications") {
		t.Error("longer identifier should win")
	}
	if moreSpecific("/aa", "/ab") != true {
		t.Error("equal length should break to the lexicographically smaller identifier")
	}
	if moreSpecific("/ab", "/aa") {
		t.Error("tie-break must be asymmetric")
	}
}
