// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lirios/ostree-upload/modules/gvariant"
)

// Commit is the decoded form of a commit object. Only the fields the
// push protocol walks are surfaced.
type Commit struct {
	Checksum string
	Parent   string // empty for a root commit
	RootTree string
	RootMeta string
}

// HasParent reports whether the commit has a parent commit.
func (c *Commit) HasParent() bool { return c.Parent != "" }

// TreeFile is a file entry of a dirtree object.
type TreeFile struct {
	Name     string
	Checksum string
}

// TreeDir is a subdirectory entry of a dirtree object.
type TreeDir struct {
	Name string
	Tree string
	Meta string
}

// DirTree is the decoded form of a dirtree object.
type DirTree struct {
	Files []TreeFile
	Dirs  []TreeDir
}

// Commit object serialization: (a{sv}aya(say)sstayay) — metadata,
// parent checksum, related objects, subject, body, timestamp, root
// dirtree checksum, root dirmeta checksum.
var commitMembers = []gvariant.Member{
	{Align: 8},               // a{sv} metadata
	{Align: 1},               // ay parent
	{Align: 1},               // a(say) related objects
	{Align: 1},               // s subject
	{Align: 1},               // s body
	{Align: 8, FixedSize: 8}, // t timestamp
	{Align: 1},               // ay root dirtree
	{Align: 1},               // ay root dirmeta
}

// LoadCommit reads and decodes a commit object. A missing object file
// yields a NoSuchObjectError, which the ancestry walk relies on to
// detect shallow history.
func (r *Repo) LoadCommit(rev string) (*Commit, error) {
	data, err := os.ReadFile(r.objectFile(rev, ObjectTypeCommit))
	if os.IsNotExist(err) {
		return nil, &NoSuchObjectError{Checksum: rev, Type: ObjectTypeCommit}
	}
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", rev, err)
	}
	return decodeCommit(rev, data)
}

func decodeCommit(rev string, data []byte) (*Commit, error) {
	members, err := gvariant.Slice(data).Tuple(commitMembers)
	if err != nil {
		return nil, fmt.Errorf("decode commit %s: %w", rev, err)
	}
	c := &Commit{Checksum: rev}
	if c.Parent, err = checksumBytes(members[1], true); err != nil {
		return nil, fmt.Errorf("decode commit %s: parent: %w", rev, err)
	}
	if c.RootTree, err = checksumBytes(members[6], false); err != nil {
		return nil, fmt.Errorf("decode commit %s: root tree: %w", rev, err)
	}
	if c.RootMeta, err = checksumBytes(members[7], false); err != nil {
		return nil, fmt.Errorf("decode commit %s: root metadata: %w", rev, err)
	}
	return c, nil
}

// Dirtree object serialization: (a(say)a(sayay)) — file entries, then
// subdirectory entries carrying dirtree and dirmeta checksums.
var (
	fileEntryMembers = []gvariant.Member{{Align: 1}, {Align: 1}}
	dirEntryMembers  = []gvariant.Member{{Align: 1}, {Align: 1}, {Align: 1}}
	dirTreeMembers   = []gvariant.Member{{Align: 1}, {Align: 1}}
)

// LoadDirTree reads and decodes a dirtree object.
func (r *Repo) LoadDirTree(checksum string) (*DirTree, error) {
	data, err := os.ReadFile(r.objectFile(checksum, ObjectTypeDirTree))
	if os.IsNotExist(err) {
		return nil, &NoSuchObjectError{Checksum: checksum, Type: ObjectTypeDirTree}
	}
	if err != nil {
		return nil, fmt.Errorf("load dirtree %s: %w", checksum, err)
	}
	return decodeDirTree(checksum, data)
}

func decodeDirTree(checksum string, data []byte) (*DirTree, error) {
	members, err := gvariant.Slice(data).Tuple(dirTreeMembers)
	if err != nil {
		return nil, fmt.Errorf("decode dirtree %s: %w", checksum, err)
	}
	files, err := members[0].VarArray(1)
	if err != nil {
		return nil, fmt.Errorf("decode dirtree %s: files: %w", checksum, err)
	}
	dirs, err := members[1].VarArray(1)
	if err != nil {
		return nil, fmt.Errorf("decode dirtree %s: dirs: %w", checksum, err)
	}
	t := &DirTree{}
	for _, f := range files {
		entry, err := f.Tuple(fileEntryMembers)
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: file entry: %w", checksum, err)
		}
		name, err := entry[0].String()
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: file name: %w", checksum, err)
		}
		csum, err := checksumBytes(entry[1], false)
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: file %s: %w", checksum, name, err)
		}
		t.Files = append(t.Files, TreeFile{Name: name, Checksum: csum})
	}
	for _, d := range dirs {
		entry, err := d.Tuple(dirEntryMembers)
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: dir entry: %w", checksum, err)
		}
		name, err := entry[0].String()
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: dir name: %w", checksum, err)
		}
		tree, err := checksumBytes(entry[1], false)
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: dir %s tree: %w", checksum, name, err)
		}
		meta, err := checksumBytes(entry[2], false)
		if err != nil {
			return nil, fmt.Errorf("decode dirtree %s: dir %s meta: %w", checksum, name, err)
		}
		t.Dirs = append(t.Dirs, TreeDir{Name: name, Tree: tree, Meta: meta})
	}
	return t, nil
}

func checksumBytes(s gvariant.Slice, allowEmpty bool) (string, error) {
	if len(s) == 0 && allowEmpty {
		return "", nil
	}
	if len(s) != 32 {
		return "", fmt.Errorf("checksum is %d bytes, want 32", len(s))
	}
	return hex.EncodeToString(s.Bytes()), nil
}
