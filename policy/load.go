// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Document is the on-disk shape of a policy file: one JSON object
// holding a list of policies. Files are authored as JSONC (JSON
// extended with // comments, /* block comments */, and trailing
// commas) so administrators can annotate why a target is constrained.
type Document struct {
	Policies []ProtectionPolicy `json:"policies"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result and validates every policy in it.
func Parse(data []byte) ([]ProtectionPolicy, error) {
	stripped := jsonc.ToJSON(data)

	var document Document
	if err := json.Unmarshal(stripped, &document); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}

	for _, policy := range document.Policies {
		if err := policy.Validate(); err != nil {
			return nil, err
		}
	}
	return document.Policies, nil
}

// ReadFile reads a JSONC policy file from disk and parses it.
func ReadFile(path string) ([]ProtectionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	policies, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policies, nil
}

// LoadDirectory reads every .json and .jsonc file in dir (sorted by
// name, so load order is deterministic) and adds the policies to the
// store. Returns the number of policies loaded. A missing directory is
// not an error — a fresh installation has no policies yet.
func LoadDirectory(store *Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading policy directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		extension := strings.ToLower(filepath.Ext(entry.Name()))
		if extension != ".json" && extension != ".jsonc" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		policies, err := ReadFile(filepath.Join(dir, name))
		if err != nil {
			return loaded, err
		}
		for _, policy := range policies {
			store.Add(policy)
			loaded++
		}
	}
	return loaded, nil
}
