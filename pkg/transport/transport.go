// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the wire surface of the push protocol: the
// JSON shapes exchanged over /api/v1 and the client interface the
// pusher drives.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// RevNull denotes "no prior revision": a branch that does not exist on
// the receiving side yet.
const RevNull = "0000000000000000000000000000000000000000000000000000000000000000"

// Info describes the remote repository.
type Info struct {
	Mode string            `json:"mode"`
	Refs map[string]string `json:"refs"`
}

// RevisionPair is a (from, to) revision pair, serialized as a
// two-element JSON array for compatibility with the original wire
// format.
type RevisionPair struct {
	From string
	To   string
}

func (p RevisionPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.From, p.To})
}

func (p *RevisionPair) UnmarshalJSON(data []byte) error {
	var v [2]string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("revision pair: %w", err)
	}
	p.From, p.To = v[0], v[1]
	return nil
}

// UpdateSet maps branch names to the revision pair they move across.
type UpdateSet map[string]RevisionPair

// UpdateRequest is the body of POST /update.
type UpdateRequest struct {
	Refs UpdateSet `json:"refs"`
}

// Status is the protocol-level result envelope. A false status with a
// message is a negotiation failure, not a transport error.
type Status struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

// NeededObject names one object the sender wants to ship. ObjectPath
// is sender-local; the receiver carries it through untouched.
type NeededObject struct {
	Rev        string `json:"rev"`
	ObjectName string `json:"object_name"`
	ObjectPath string `json:"object_path"`
	Checksum   string `json:"checksum"`
}

// MissingObjectsArgs is the body of GET /missing_objects.
type MissingObjectsArgs struct {
	Wanted []NeededObject `json:"wanted"`
}

// MissingObjectsResponse lists the subset the receiver does not have.
type MissingObjectsResponse struct {
	Missing []NeededObject `json:"missing"`
}

// MissingObjectsLimit caps the GET /missing_objects request body;
// clients chunk their wanted lists below it.
const MissingObjectsLimit = 10 << 20

// Transport is the client side of the six wire operations.
type Transport interface {
	Ping(ctx context.Context) error
	Info(ctx context.Context) (*Info, error)
	Update(ctx context.Context, refs UpdateSet) (*Status, error)
	MissingObjects(ctx context.Context, wanted []NeededObject) ([]NeededObject, error)
	Upload(ctx context.Context, object *NeededObject) (*Status, error)
	Done(ctx context.Context) (*Status, error)
}
