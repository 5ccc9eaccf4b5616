// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

import "fmt"

// ObjectType enumerates the object kinds stored under objects/.
type ObjectType int

const (
	ObjectTypeFile ObjectType = iota + 1
	ObjectTypeFileZ
	ObjectTypeDirTree
	ObjectTypeDirMeta
	ObjectTypeCommit
	ObjectTypeCommitMeta
)

func (t ObjectType) String() string {
	switch t {
	case ObjectTypeFile:
		return "file"
	case ObjectTypeFileZ:
		return "filez"
	case ObjectTypeDirTree:
		return "dirtree"
	case ObjectTypeDirMeta:
		return "dirmeta"
	case ObjectTypeCommit:
		return "commit"
	case ObjectTypeCommitMeta:
		return "commitmeta"
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// ObjectRef names one content-addressed object.
type ObjectRef struct {
	Checksum string
	Type     ObjectType
}

// ObjectName renders the on-disk object name, "<checksum>.<suffix>".
func ObjectName(checksum string, t ObjectType) string {
	return checksum + "." + t.String()
}

// IsChecksum reports whether s is a 64-character lowercase hex string.
func IsChecksum(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
