// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"encoding/json"
	"fmt"
)

// StatusType discriminates the persisted extension status record.
type StatusType string

const (
	// StatusNotInstalled means the system extension is not installed.
	StatusNotInstalled StatusType = "notInstalled"

	// StatusInstalled means the extension is installed but not running.
	StatusInstalled StatusType = "installed"

	// StatusActive means the mediation pipeline is subscribed and
	// rendering verdicts.
	StatusActive StatusType = "active"

	// StatusActivating means activation is in progress.
	StatusActivating StatusType = "activating"

	// StatusDeactivating means teardown is in progress.
	StatusDeactivating StatusType = "deactivating"

	// StatusError means the pipeline failed; the record carries the
	// failure message.
	StatusError StatusType = "error"
)

// Status is the persisted lifecycle status: a discriminated record
// whose error variant carries a message. Decoding is strict — an
// unknown type or an error record without a message fails rather than
// producing a half-valid status.
type Status struct {
	Type StatusType

	// Message is the failure description. Set exactly when Type is
	// StatusError.
	Message string
}

// statusWire is the JSON shape. Message is a pointer so decoding can
// distinguish an absent field from an empty string.
type statusWire struct {
	Type    StatusType `json:"type"`
	Message *string    `json:"message,omitempty"`
}

// ErrorStatus returns a Status of type error with the given message.
func ErrorStatus(message string) Status {
	return Status{Type: StatusError, Message: message}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	wire := statusWire{Type: s.Type}
	if s.Type == StatusError {
		wire.Message = &s.Message
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var wire statusWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decoding status record: %w", err)
	}

	switch wire.Type {
	case StatusNotInstalled, StatusInstalled, StatusActive, StatusActivating, StatusDeactivating:
		s.Type = wire.Type
		s.Message = ""
		return nil
	case StatusError:
		if wire.Message == nil {
			return fmt.Errorf("decoding status record: error status requires a message")
		}
		s.Type = StatusError
		s.Message = *wire.Message
		return nil
	default:
		return fmt.Errorf("decoding status record: unknown status type %q", wire.Type)
	}
}
