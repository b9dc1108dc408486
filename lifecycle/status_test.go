// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStatusRoundTrip(t *testing.T) {
	statuses := []Status{
		{Type: StatusNotInstalled},
		{Type: StatusInstalled},
		{Type: StatusActive},
		{Type: StatusActivating},
		{Type: StatusDeactivating},
		ErrorStatus("subscription failed: full disk access denied"),
		ErrorStatus(""),
	}
	for _, status := range statuses {
		data, err := json.Marshal(status)
		if err != nil {
			t.Fatalf("marshal %v: %v", status.Type, err)
		}
		var decoded Status
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %v (%s): %v", status.Type, data, err)
		}
		if decoded != status {
			t.Errorf("round trip of %+v produced %+v", status, decoded)
		}
	}
}

func TestStatusDecodeUnknownTypeFails(t *testing.T) {
	var status Status
	if err := json.Unmarshal([]byte(`{"type":"hibernating"}`), &status); err == nil {
		t.Fatal("unknown status type decoded without error")
	}
}

func TestStatusDecodeErrorWithoutMessageFails(t *testing.T) {
	var status Status
	if err := json.Unmarshal([]byte(`{"type":"error"}`), &status); err == nil {
		t.Fatal("error status without message decoded without error")
	}
	// An explicitly empty message is present, so it decodes.
	if err := json.Unmarshal([]byte(`{"type":"error","message":""}`), &status); err != nil {
		t.Fatalf("error status with empty message failed to decode: %v", err)
	}
}

func TestStatusFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	written := ErrorStatus("bridge socket missing")
	if err := WriteStatus(path, written); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	read, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if read != written {
		t.Errorf("ReadStatus = %+v, want %+v", read, written)
	}

	// Overwrite is atomic from the reader's perspective; at minimum
	// the second write fully replaces the first.
	if err := WriteStatus(path, Status{Type: StatusActive}); err != nil {
		t.Fatalf("second WriteStatus: %v", err)
	}
	read, err = ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus after overwrite: %v", err)
	}
	if read.Type != StatusActive {
		t.Errorf("status after overwrite = %+v", read)
	}
}

func TestReadStatusMissingFile(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := WrapError(KindSubscriptionFailed, errors.New("es_subscribe returned 3"), "opening event subscription")
	if !IsKind(err, KindSubscriptionFailed) {
		t.Error("IsKind missed the wrapped kind")
	}
	if IsKind(err, KindEntitlementMissing) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(errors.New("plain"), KindSubscriptionFailed) {
		t.Error("IsKind matched a plain error")
	}

	var lifecycleErr *Error
	if !errors.As(err, &lifecycleErr) {
		t.Fatal("errors.As failed to extract *Error")
	}
	if lifecycleErr.Cause == nil {
		t.Error("wrapped error lost its cause")
	}
}
