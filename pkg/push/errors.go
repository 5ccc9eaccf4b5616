// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"errors"
	"fmt"
)

// ShallowHistoryError means the local history is too shallow to reach
// the revision the receiver is at.
type ShallowHistoryError struct {
	Local  string
	Remote string
}

func (e *ShallowHistoryError) Error() string {
	return fmt.Sprintf("shallow history from commit %s doesn't contain remote commit %s", e.Local, e.Remote)
}

// NotDescendantError means the receiver's revision is not an ancestor
// of the local head, so the push is not a fast-forward.
type NotDescendantError struct {
	Local  string
	Remote string
}

func (e *NotDescendantError) Error() string {
	return fmt.Sprintf("remote commit %s not descendant of commit %s", e.Remote, e.Local)
}

// MissingLocalObjectError means an object the commit walk needs is not
// present in the local store.
type MissingLocalObjectError struct {
	ObjectName string
	Err        error
}

func (e *MissingLocalObjectError) Error() string {
	return fmt.Sprintf("local object %s missing: %v", e.ObjectName, e.Err)
}

func (e *MissingLocalObjectError) Unwrap() error { return e.Err }

// NegotiationError carries the receiver's refusal message from /update.
type NegotiationError struct {
	Message string
}

func (e *NegotiationError) Error() string {
	if e.Message == "" {
		return "update rejected by receiver"
	}
	return "update rejected by receiver: " + e.Message
}

func IsNegotiationError(err error) bool {
	var e *NegotiationError
	return errors.As(err, &e)
}
