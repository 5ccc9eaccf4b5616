// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"sync"

	"github.com/lirios/ostree-upload/pkg/transport"
)

// Session is the receiver's single in-flight push. All fields are
// guarded by the embedded mutex; handlers lock around every read or
// write so concurrent requests observe a consistent state.
type Session struct {
	sync.Mutex

	updateRefs transport.UpdateSet
	received   map[string]bool
}

// Active reports whether a push is in flight. Callers must hold the
// lock.
func (s *Session) Active() bool {
	return s.updateRefs != nil
}

// Begin records the negotiated update set, replacing any previous
// session. Callers must hold the lock.
func (s *Session) Begin(refs transport.UpdateSet) {
	s.updateRefs = refs
	s.received = make(map[string]bool)
}

// UpdateRefs returns the negotiated update set, or nil outside a
// session. Callers must hold the lock.
func (s *Session) UpdateRefs() transport.UpdateSet {
	return s.updateRefs
}

// Record marks an object as received. Re-recording the same object,
// as an interrupted client does when it retries an upload, is a no-op.
// Callers must hold the lock.
func (s *Session) Record(objectName string) {
	if s.received != nil {
		s.received[objectName] = true
	}
}

// Received lists the objects recorded so far. Callers must hold the
// lock.
func (s *Session) Received() []string {
	names := make([]string, 0, len(s.received))
	for name := range s.received {
		names = append(names, name)
	}
	return names
}

// End clears the session. Callers must hold the lock.
func (s *Session) End() {
	s.updateRefs = nil
	s.received = nil
}
