// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transport

import "fmt"

// Error-type discriminators carried in the error envelope.
const (
	ErrorTypeInternal            = "internal-error"
	ErrorTypeNotFound            = "not-found"
	ErrorTypeGeneric             = "generic-error"
	ErrorTypeWrongRepoState      = "wrong-repo-state"
	ErrorTypeWrongPublishedState = "wrong-published-state"
	ErrorTypeInvalidToken        = "invalid-token"
	ErrorTypeTokenInsufficient   = "token-insufficient"
)

// ErrorResponse is the JSON envelope for non-2xx responses.
type ErrorResponse struct {
	Status        int    `json:"status"`
	Type          string `json:"error-type"`
	Message       string `json:"message"`
	CurrentState  string `json:"current-state,omitempty"`
	ExpectedState string `json:"expected-state,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Type, e.Status, e.Message)
}
