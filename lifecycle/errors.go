// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a lifecycle or platform failure. The kinds
// cover both this package's own transitions and the surrounding
// installation flow, so one switch handles every failure the
// subsystem can surface.
type ErrorKind string

const (
	// KindEntitlementMissing means the process lacks the entitlement
	// required to attach to the kernel event source.
	KindEntitlementMissing ErrorKind = "entitlementMissing"

	// KindFullDiskAccessDenied means the system denied the disk access
	// permission the event source requires.
	KindFullDiskAccessDenied ErrorKind = "fullDiskAccessDenied"

	// KindClientInitializationFailed means the event source client
	// could not be created.
	KindClientInitializationFailed ErrorKind = "clientInitializationFailed"

	// KindSubscriptionFailed means the event subscription could not be
	// established.
	KindSubscriptionFailed ErrorKind = "subscriptionFailed"

	// KindClientDisconnected means the event source connection dropped
	// or an operation requires a connection that does not exist.
	KindClientDisconnected ErrorKind = "clientDisconnected"

	// KindEventProcessingTimeout means mediation of one event did not
	// produce a verdict within the authorization deadline.
	KindEventProcessingTimeout ErrorKind = "eventProcessingTimeout"

	// KindIncompatibleOSVersion means the running OS does not support
	// the event source.
	KindIncompatibleOSVersion ErrorKind = "incompatibleOSVersion"

	// KindInstallationFailed means the system extension could not be
	// installed.
	KindInstallationFailed ErrorKind = "installationFailed"

	// KindActivationFailed means the installed extension could not be
	// activated.
	KindActivationFailed ErrorKind = "activationFailed"
)

// Error is a structured lifecycle failure. Callers use errors.As to
// extract it:
//
//	var lifecycleErr *lifecycle.Error
//	if errors.As(err, &lifecycleErr) {
//	    if lifecycleErr.Kind == lifecycle.KindSubscriptionFailed { ... }
//	}
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message is the human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lifecycle: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("lifecycle: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As
// traversal.
func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error of the given kind around a cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsKind checks whether err is (or wraps) a lifecycle *Error of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var lifecycleErr *Error
	if errors.As(err, &lifecycleErr) {
		return lifecycleErr.Kind == kind
	}
	return false
}
