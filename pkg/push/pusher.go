// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package push computes what a receiver is missing and drives the
// client side of the replication protocol: commit-ancestry walk,
// reachable-object enumeration, fingerprinting and upload.
package push

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lirios/ostree-upload/modules/ostree"
	"github.com/lirios/ostree-upload/pkg/transport"
)

// Repo is the slice of the local repository backend the pusher needs.
// *ostree.Repo implements it.
type Repo interface {
	ListRefs() (map[string]string, error)
	ResolveRev(refspec string) (string, error)
	LoadCommit(rev string) (*ostree.Commit, error)
	Traverse(rev string) ([]ostree.ObjectRef, error)
	Prune() (*ostree.PruneResult, error)
	ObjectPath(objectName string) string
}

// Pusher walks the local store to decide what to ship.
type Pusher struct {
	repo     Repo
	branches map[string]string
}

// New enumerates the branches to push: the given refspecs, or every
// local ref when none are named. A refspec that does not resolve is
// fatal.
func New(repo Repo, refspecs []string) (*Pusher, error) {
	branches := make(map[string]string)
	if len(refspecs) == 0 {
		refs, err := repo.ListRefs()
		if err != nil {
			return nil, err
		}
		branches = refs
	} else {
		for _, refspec := range refspecs {
			rev, err := repo.ResolveRev(refspec)
			if err != nil {
				return nil, fmt.Errorf("resolve refspec %q: %w", refspec, err)
			}
			branches[refspec] = rev
		}
	}
	return &Pusher{repo: repo, branches: branches}, nil
}

// Branches returns the branch→revision set selected at construction.
func (p *Pusher) Branches() map[string]string { return p.branches }

// CheckUpdate returns every local branch whose revision differs from
// the receiver's, paired with the receiver's revision (RevNull when the
// branch is new there).
func (p *Pusher) CheckUpdate(remoteRefs map[string]string) transport.UpdateSet {
	update := make(transport.UpdateSet)
	for branch, rev := range p.branches {
		remoteRev, ok := remoteRefs[branch]
		if !ok {
			remoteRev = transport.RevNull
		}
		if rev != remoteRev {
			update[branch] = transport.RevisionPair{From: remoteRev, To: rev}
		}
	}
	return update
}

// neededCommits walks parent links from localRev and appends every
// commit up to, but not including, remoteRev. RevNull means the whole
// chain down to the root commit.
func (p *Pusher) neededCommits(remoteRev, localRev string, commits []string) ([]string, error) {
	target := ""
	if remoteRev != transport.RevNull {
		target = remoteRev
	}
	parent := localRev
	for parent != target {
		commits = append(commits, parent)
		commit, err := p.repo.LoadCommit(parent)
		if ostree.IsNoSuchObject(err) {
			return nil, &ShallowHistoryError{Local: localRev, Remote: remoteRev}
		}
		if err != nil {
			return nil, err
		}
		if !commit.HasParent() {
			parent = ""
			break
		}
		parent = commit.Parent
	}
	if target != "" && parent != target {
		return nil, &NotDescendantError{Local: localRev, Remote: remoteRev}
	}
	return commits, nil
}

// neededObjects enumerates every object reachable from the given
// commits, mapped to its archive spelling: file objects ship as filez,
// commits also ship their detached metadata when present on disk.
// Fingerprints are computed over the on-disk bytes, in parallel.
func (p *Pusher) neededObjects(ctx context.Context, commits []string) ([]transport.NeededObject, error) {
	var objects []transport.NeededObject
	seen := make(map[string]bool)
	add := func(rev string, name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		objects = append(objects, transport.NeededObject{
			Rev:        rev,
			ObjectName: name,
			ObjectPath: p.repo.ObjectPath(name),
		})
	}

	for _, rev := range commits {
		reachable, err := p.repo.Traverse(rev)
		if err != nil {
			return nil, err
		}
		for _, object := range reachable {
			switch object.Type {
			case ostree.ObjectTypeFile:
				// Archive repositories store file objects compressed.
				add(object.Checksum, ostree.ObjectName(object.Checksum, ostree.ObjectTypeFileZ))
			case ostree.ObjectTypeCommit:
				add(object.Checksum, ostree.ObjectName(object.Checksum, ostree.ObjectTypeCommit))
				meta := ostree.ObjectName(object.Checksum, ostree.ObjectTypeCommitMeta)
				if _, err := os.Stat(p.repo.ObjectPath(meta)); err == nil {
					add(object.Checksum, meta)
				}
			default:
				add(object.Checksum, ostree.ObjectName(object.Checksum, object.Type))
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range objects {
		i := i
		g.Go(func() error {
			fp, err := transport.FingerprintFile(objects[i].ObjectPath)
			if os.IsNotExist(err) {
				return &MissingLocalObjectError{ObjectName: objects[i].ObjectName, Err: err}
			}
			if err != nil {
				return err
			}
			objects[i].Checksum = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return objects, nil
}

// Retrieve accumulates the commit chains for every branch in the
// update set and enumerates the objects they need. Branches are
// processed in name order so the result is stable.
func (p *Pusher) Retrieve(ctx context.Context, updateRefs transport.UpdateSet) ([]transport.NeededObject, error) {
	branches := make([]string, 0, len(updateRefs))
	for branch := range updateRefs {
		branches = append(branches, branch)
	}
	sort.Strings(branches)

	var commits []string
	var err error
	for _, branch := range branches {
		revs := updateRefs[branch]
		logrus.Infof("Updating branch %s from %s to %s", branch, revs.From, revs.To)
		if commits, err = p.neededCommits(revs.From, revs.To, commits); err != nil {
			return nil, err
		}
	}

	logrus.Info("Enumerating objects to send...")
	return p.neededObjects(ctx, commits)
}

// Prune drops unreferenced local objects before enumerating, so the
// walk does not ship garbage. Failure is fatal to the push.
func (p *Pusher) Prune() error {
	result, err := p.repo.Prune()
	if err != nil {
		return fmt.Errorf("prune repository: %w", err)
	}
	logrus.Infof("Pruned %d/%d objects, %d bytes deleted", result.Pruned, result.Objects, result.Size)
	return nil
}
