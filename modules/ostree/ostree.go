// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ostree reads and mutates OSTree repositories in archive mode:
// refs, commit ancestry, reachable-object traversal, pruning. It only
// understands the pieces of the on-disk format the push protocol needs;
// checkout, deltas and summaries are out of scope.
package ostree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// Repo is a handle to an OSTree repository. Handles are cheap and not
// safe to share across goroutines; callers reopen per operation.
type Repo struct {
	path string
	mode RepoMode
}

// Open reads <path>/config and returns a handle. The repository must
// be repo_version 1.
func Open(path string) (*Repo, error) {
	cfg, err := ini.Load(filepath.Join(path, "config"))
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	core := cfg.Section("core")
	if v := core.Key("repo_version").MustInt(0); v != 1 {
		return nil, fmt.Errorf("open repository %s: unsupported repo_version %d", path, v)
	}
	return &Repo{
		path: path,
		mode: ParseRepoMode(core.Key("mode").String()),
	}, nil
}

func (r *Repo) Path() string   { return r.path }
func (r *Repo) Mode() RepoMode { return r.mode }

func (r *Repo) refsDir() string {
	return filepath.Join(r.path, "refs", "heads")
}

// ListRefs returns every local branch and the revision it points at.
func (r *Repo) ListRefs() (map[string]string, error) {
	refs := make(map[string]string)
	root := r.refsDir()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rev, err := readRevFile(path)
		if err != nil {
			return err
		}
		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(name)] = rev
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// ResolveRev resolves a branch name or a full hex revision to a commit
// revision.
func (r *Repo) ResolveRev(refspec string) (string, error) {
	if IsChecksum(refspec) {
		if _, err := os.Stat(r.objectFile(refspec, ObjectTypeCommit)); err != nil {
			return "", &RevNotFoundError{Refspec: refspec}
		}
		return refspec, nil
	}
	rev, err := readRevFile(filepath.Join(r.refsDir(), filepath.FromSlash(refspec)))
	if err != nil {
		return "", &RevNotFoundError{Refspec: refspec}
	}
	return rev, nil
}

// SetRefImmediate points branch at rev, creating the branch if needed.
// The ref file is written to a temporary name and renamed in place.
func (r *Repo) SetRefImmediate(branch, rev string) error {
	if !IsChecksum(rev) {
		return fmt.Errorf("set ref %s: invalid revision %q", branch, rev)
	}
	path := filepath.Join(r.refsDir(), filepath.FromSlash(branch))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("set ref %s: %w", branch, err)
	}
	tmp := path + ".lock"
	if err := os.WriteFile(tmp, []byte(rev+"\n"), 0o644); err != nil {
		return fmt.Errorf("set ref %s: %w", branch, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("set ref %s: %w", branch, err)
	}
	return nil
}

// ObjectPath maps an object name like "ab12…ef.commit" into the
// two-level fan-out layout under objects/.
func (r *Repo) ObjectPath(objectName string) string {
	return filepath.Join(r.path, "objects", objectName[:2], objectName[2:])
}

func (r *Repo) objectFile(checksum string, t ObjectType) string {
	return r.ObjectPath(ObjectName(checksum, t))
}

// HasObject reports whether the object exists on disk.
func (r *Repo) HasObject(checksum string, t ObjectType) bool {
	_, err := os.Stat(r.objectFile(checksum, t))
	return err == nil
}

func readRevFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	rev := strings.TrimSpace(string(b))
	if !IsChecksum(rev) {
		return "", fmt.Errorf("%s: malformed revision %q", path, rev)
	}
	return rev, nil
}
