// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

import (
	"errors"
	"fmt"
)

// NoSuchObjectError reports a missing object in the store.
type NoSuchObjectError struct {
	Checksum string
	Type     ObjectType
}

func (e *NoSuchObjectError) Error() string {
	return fmt.Sprintf("no such object %s", ObjectName(e.Checksum, e.Type))
}

func IsNoSuchObject(err error) bool {
	var e *NoSuchObjectError
	return errors.As(err, &e)
}

// RevNotFoundError reports a refspec that resolves to nothing.
type RevNotFoundError struct {
	Refspec string
}

func (e *RevNotFoundError) Error() string {
	return fmt.Sprintf("rev %q not found", e.Refspec)
}

func IsErrRevNotFound(err error) bool {
	var e *RevNotFoundError
	return errors.As(err, &e)
}
