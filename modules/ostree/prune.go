// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// PruneResult summarizes one prune pass.
type PruneResult struct {
	Objects int   // objects found in the store
	Pruned  int   // objects deleted
	Size    int64 // bytes reclaimed
}

// Prune removes every object not reachable from a ref, walking the
// full ancestry of each branch (no depth limit). File objects are
// matched against their archive spelling (filez).
func (r *Repo) Prune() (*PruneResult, error) {
	live := make(map[string]bool)
	refs, err := r.ListRefs()
	if err != nil {
		return nil, err
	}
	for _, rev := range refs {
		for rev != "" {
			commit, err := r.LoadCommit(rev)
			if IsNoSuchObject(err) {
				// Shallow history; keep what we can reach.
				break
			}
			if err != nil {
				return nil, err
			}
			if err := r.markReachable(rev, live); err != nil {
				return nil, err
			}
			rev = commit.Parent
		}
	}

	result := &PruneResult{}
	objectsDir := filepath.Join(r.path, "objects")
	err = filepath.WalkDir(objectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(objectsDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if len(name) < 3 || name[2] != '/' {
			return nil
		}
		result.Objects++
		if live[name[:2]+name[3:]] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("prune %s: %w", name, err)
		}
		result.Pruned++
		result.Size += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("prune: %w", err)
	}
	return result, nil
}

func (r *Repo) markReachable(rev string, live map[string]bool) error {
	reachable, err := r.Traverse(rev)
	if err != nil {
		return err
	}
	for _, ref := range reachable {
		t := ref.Type
		if t == ObjectTypeFile && r.mode == ModeArchive {
			t = ObjectTypeFileZ
		}
		live[ObjectName(ref.Checksum, t)] = true
		if ref.Type == ObjectTypeCommit {
			live[ObjectName(ref.Checksum, ObjectTypeCommitMeta)] = true
		}
	}
	return nil
}
