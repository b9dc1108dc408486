// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteStatus atomically writes the status record to path. The record
// is written to a temporary file in the same directory, fsynced, and
// renamed into place, so a concurrent reader never sees a partial
// record. The file is created with mode 0600; the parent directory
// must exist.
func WriteStatus(path string, status Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status record: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary status file: %w", err)
	}

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary status file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary status file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary status file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming status file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if parentDirectory, err := os.Open(filepath.Dir(path)); err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// ReadStatus reads and strictly decodes the status record at path.
// When the file does not exist, the returned error wraps
// os.ErrNotExist (testable with errors.Is).
func ReadStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("parsing status file %s: %w", path, err)
	}
	return status, nil
}
