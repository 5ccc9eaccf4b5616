// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"

	"github.com/lirios/ostree-upload/modules/ostree"
	"github.com/lirios/ostree-upload/pkg/transport"
)

// Receiver performs the repository-side operations of a push session.
// It keeps no repository handle: handles are not shared across
// goroutines, so every operation reopens the repository.
type Receiver struct {
	repoPath string
	tempPath string
	// Fingerprints are re-requested for the same paths across
	// /missing_objects and /upload; cache them keyed by (path, size,
	// mtime) so unchanged files are hashed once.
	fingerprints *ristretto.Cache[string, string]
}

// NewReceiver prepares a receiver for the repository at repoPath,
// creating the staging directory <repo>/.tmp. Staged files survive the
// process; a later session resumes them by fingerprint.
func NewReceiver(repoPath string) (*Receiver, error) {
	tempPath := filepath.Join(repoPath, ".tmp")
	if err := os.MkdirAll(tempPath, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Receiver{repoPath: repoPath, tempPath: tempPath, fingerprints: cache}, nil
}

func (r *Receiver) openRepo() (*ostree.Repo, error) {
	repo, err := ostree.Open(r.repoPath)
	if err != nil {
		return nil, fmt.Errorf("open the repository: %w", err)
	}
	return repo, nil
}

// TempPath locates an object in the staging area.
func (r *Receiver) TempPath(objectName string) string {
	return filepath.Join(r.tempPath, objectName)
}

// ObjectPath locates a promoted object in the store.
func (r *Receiver) ObjectPath(objectName string) string {
	return filepath.Join(r.repoPath, "objects", objectName[:2], objectName[2:])
}

// GetInfo reports the repository mode and its refs.
func (r *Receiver) GetInfo() (*transport.Info, error) {
	repo, err := r.openRepo()
	if err != nil {
		return nil, err
	}
	refs, err := repo.ListRefs()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return &transport.Info{Mode: repo.Mode().String(), Refs: refs}, nil
}

// CheckUpdate validates the client's view of every branch: an existing
// branch must be exactly at from_rev, a new branch must come from
// RevNull. Pure negotiation; nothing is mutated.
func (r *Receiver) CheckUpdate(refs transport.UpdateSet) (*transport.Status, error) {
	repo, err := r.openRepo()
	if err != nil {
		return nil, err
	}
	for _, branch := range sortedBranches(refs) {
		revs := refs[branch]
		current, err := repo.ResolveRev(branch)
		if err != nil {
			if !ostree.IsErrRevNotFound(err) {
				return nil, err
			}
			if revs.From != transport.RevNull {
				return &transport.Status{
					Status:  false,
					Message: fmt.Sprintf("Invalid from commit %s for new branch %s", revs.From, branch),
				}, nil
			}
			continue
		}
		if revs.From != current {
			return &transport.Status{
				Status:  false,
				Message: fmt.Sprintf("Branch %s is at %s, not %s", branch, current, revs.From),
			}, nil
		}
	}
	return &transport.Status{Status: true}, nil
}

// UpdateRefs points every branch at its to_rev, one ref at a time. A
// mid-list failure leaves the earlier refs updated.
func (r *Receiver) UpdateRefs(refs transport.UpdateSet) error {
	repo, err := r.openRepo()
	if err != nil {
		return err
	}
	for _, branch := range sortedBranches(refs) {
		revs := refs[branch]
		logrus.Infof("Setting branch %s revision from %s to %s", branch, revs.From, revs.To)
		if err := repo.SetRefImmediate(branch, revs.To); err != nil {
			return fmt.Errorf("set branch %s revision from %s to %s: %w", branch, revs.From, revs.To, err)
		}
	}
	return nil
}

// Fingerprint hashes the file at path, serving unchanged files from
// the cache.
func (r *Receiver) Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if fp, ok := r.fingerprints.Get(key); ok {
		return fp, nil
	}
	fp, err := transport.FingerprintFile(path)
	if err != nil {
		return "", err
	}
	r.fingerprints.Set(key, fp, 1)
	return fp, nil
}

func sortedBranches(refs transport.UpdateSet) []string {
	branches := make([]string, 0, len(refs))
	for branch := range refs {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches
}
