// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ostreetest builds throwaway archive repositories for tests.
// Object payloads are synthetic but the metadata objects are real
// GVariant, so the production decoder and traversal run against them.
package ostreetest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/lirios/ostree-upload/modules/gvariant"
	"github.com/lirios/ostree-upload/modules/ostree"
)

// Repo is a scratch repository rooted at Dir.
type Repo struct {
	Dir string
}

// Init creates an archive repository under a test temp dir.
func Init(t testing.TB) *Repo {
	t.Helper()
	return InitAt(t, t.TempDir(), "archive-z2")
}

// InitAt creates a repository with the given core.mode at dir.
func InitAt(t testing.TB, dir, mode string) *Repo {
	t.Helper()
	for _, sub := range []string{"objects", filepath.Join("refs", "heads")} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("init repo: %v", err)
		}
	}
	config := fmt.Sprintf("[core]\nrepo_version=1\nmode=%s\n", mode)
	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(config), 0o644); err != nil {
		t.Fatalf("init repo: %v", err)
	}
	return &Repo{Dir: dir}
}

// Open returns a backend handle on the scratch repository.
func (r *Repo) Open(t testing.TB) *ostree.Repo {
	t.Helper()
	repo, err := ostree.Open(r.Dir)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	return repo
}

// CommitOptions controls Commit.
type CommitOptions struct {
	Parent       string
	Subject      string
	DetachedMeta []byte // written as <rev>.commitmeta when set
}

// Commit writes file, dirtree, dirmeta and commit objects for the
// given path→content map, points branch at the new commit and returns
// its revision. Paths may contain slashes for subdirectories.
func (r *Repo) Commit(t testing.TB, branch string, files map[string]string, opts *CommitOptions) string {
	t.Helper()
	if opts == nil {
		opts = &CommitOptions{}
	}
	tree, meta := r.writeTree(t, files)

	b := &gvariant.TupleBuilder{}
	b.AppendVar(nil, 8, false) // a{sv} metadata
	b.AppendVar(rawChecksum(t, opts.Parent), 1, false)
	b.AppendVar(nil, 1, false) // a(say) related objects
	b.AppendVar(gvariant.EncodeString(opts.Subject), 1, false)
	b.AppendVar(gvariant.EncodeString(""), 1, false)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], 1577836800)
	b.AppendFixed(ts[:], 8)
	b.AppendVar(rawChecksum(t, tree), 1, false)
	b.AppendVar(rawChecksum(t, meta), 1, true)
	data := b.Finish()

	rev := r.writeObject(t, ostree.ObjectTypeCommit, data)
	if opts.DetachedMeta != nil {
		r.writeNamedObject(t, ostree.ObjectName(rev, ostree.ObjectTypeCommitMeta), opts.DetachedMeta)
	}
	if branch != "" {
		r.SetRef(t, branch, rev)
	}
	return rev
}

// SetRef points branch at rev.
func (r *Repo) SetRef(t testing.TB, branch, rev string) {
	t.Helper()
	path := filepath.Join(r.Dir, "refs", "heads", filepath.FromSlash(branch))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("set ref: %v", err)
	}
	if err := os.WriteFile(path, []byte(rev+"\n"), 0o644); err != nil {
		t.Fatalf("set ref: %v", err)
	}
}

// AddFile writes a filez object for content and returns its checksum.
func (r *Repo) AddFile(t testing.TB, content string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("compress file object: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress file object: %v", err)
	}
	sum := sha256.Sum256([]byte(content))
	checksum := hex.EncodeToString(sum[:])
	r.writeNamedObject(t, ostree.ObjectName(checksum, ostree.ObjectTypeFileZ), buf.Bytes())
	return checksum
}

// ObjectPath locates an object file by name.
func (r *Repo) ObjectPath(name string) string {
	return filepath.Join(r.Dir, "objects", name[:2], name[2:])
}

// Corrupt truncates the named object file to simulate a damaged store.
func (r *Repo) Corrupt(t testing.TB, name string) {
	t.Helper()
	if err := os.Truncate(r.ObjectPath(name), 1); err != nil {
		t.Fatalf("corrupt object: %v", err)
	}
}

func (r *Repo) writeTree(t testing.TB, files map[string]string) (tree, meta string) {
	t.Helper()
	direct := make(map[string]string)
	subdirs := make(map[string]map[string]string)
	for path, content := range files {
		if name, rest, nested := strings.Cut(path, "/"); nested {
			if subdirs[name] == nil {
				subdirs[name] = make(map[string]string)
			}
			subdirs[name][rest] = content
		} else {
			direct[path] = content
		}
	}

	var fileElems [][]byte
	for _, name := range sortedKeys(direct) {
		csum := r.AddFile(t, direct[name])
		e := &gvariant.TupleBuilder{}
		e.AppendVar(gvariant.EncodeString(name), 1, false)
		e.AppendVar(rawChecksum(t, csum), 1, true)
		fileElems = append(fileElems, e.Finish())
	}
	var dirElems [][]byte
	for _, name := range sortedKeys(subdirs) {
		subTree, subMeta := r.writeTree(t, subdirs[name])
		e := &gvariant.TupleBuilder{}
		e.AppendVar(gvariant.EncodeString(name), 1, false)
		e.AppendVar(rawChecksum(t, subTree), 1, false)
		e.AppendVar(rawChecksum(t, subMeta), 1, true)
		dirElems = append(dirElems, e.Finish())
	}

	b := &gvariant.TupleBuilder{}
	b.AppendVar(gvariant.EncodeVarArray(fileElems, 1), 1, false)
	b.AppendVar(gvariant.EncodeVarArray(dirElems, 1), 1, true)
	return r.writeObject(t, ostree.ObjectTypeDirTree, b.Finish()), r.writeDirMeta(t)
}

// writeDirMeta emits a (uuua(ayay)) dirmeta: root-owned 0755 directory
// with no xattrs.
func (r *Repo) writeDirMeta(t testing.TB) string {
	t.Helper()
	b := &gvariant.TupleBuilder{}
	var u [4]byte
	b.AppendFixed(u[:], 4) // uid 0
	b.AppendFixed(u[:], 4) // gid 0
	var mode [4]byte
	binary.BigEndian.PutUint32(mode[:], 0o40755)
	b.AppendFixed(mode[:], 4)
	b.AppendVar(nil, 1, true) // a(ayay) xattrs
	return r.writeObject(t, ostree.ObjectTypeDirMeta, b.Finish())
}

func (r *Repo) writeObject(t testing.TB, typ ostree.ObjectType, data []byte) string {
	t.Helper()
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	r.writeNamedObject(t, ostree.ObjectName(checksum, typ), data)
	return checksum
}

func (r *Repo) writeNamedObject(t testing.TB, name string, data []byte) {
	t.Helper()
	path := r.ObjectPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("write object %s: %v", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write object %s: %v", name, err)
	}
}

func rawChecksum(t testing.TB, checksum string) []byte {
	t.Helper()
	if checksum == "" {
		return nil
	}
	raw, err := hex.DecodeString(checksum)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad checksum %q", checksum)
	}
	return raw
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
