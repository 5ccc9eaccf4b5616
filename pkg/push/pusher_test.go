// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package push

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirios/ostree-upload/modules/ostree"
	"github.com/lirios/ostree-upload/pkg/transport"
)

const (
	revA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	revB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	revC = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	revD = "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"
)

type fakeRepo struct {
	dir     string
	refs    map[string]string
	commits map[string]*ostree.Commit
	reach   map[string][]ostree.ObjectRef
}

func (f *fakeRepo) ListRefs() (map[string]string, error) { return f.refs, nil }

func (f *fakeRepo) ResolveRev(refspec string) (string, error) {
	if rev, ok := f.refs[refspec]; ok {
		return rev, nil
	}
	return "", &ostree.RevNotFoundError{Refspec: refspec}
}

func (f *fakeRepo) LoadCommit(rev string) (*ostree.Commit, error) {
	if c, ok := f.commits[rev]; ok {
		return c, nil
	}
	return nil, &ostree.NoSuchObjectError{Checksum: rev, Type: ostree.ObjectTypeCommit}
}

func (f *fakeRepo) Traverse(rev string) ([]ostree.ObjectRef, error) {
	if refs, ok := f.reach[rev]; ok {
		return refs, nil
	}
	return nil, &ostree.NoSuchObjectError{Checksum: rev, Type: ostree.ObjectTypeCommit}
}

func (f *fakeRepo) Prune() (*ostree.PruneResult, error) { return &ostree.PruneResult{}, nil }

func (f *fakeRepo) ObjectPath(objectName string) string {
	return filepath.Join(f.dir, objectName)
}

// linearHistory wires revA → revB → revC with revC as root commit.
func linearHistory() *fakeRepo {
	return &fakeRepo{
		refs: map[string]string{"stable": revA},
		commits: map[string]*ostree.Commit{
			revA: {Checksum: revA, Parent: revB},
			revB: {Checksum: revB, Parent: revC},
			revC: {Checksum: revC},
		},
	}
}

func TestNew(t *testing.T) {
	repo := linearHistory()

	p, err := New(repo, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"stable": revA}, p.Branches())

	p, err = New(repo, []string{"stable"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"stable": revA}, p.Branches())

	_, err = New(repo, []string{"missing"})
	assert.ErrorContains(t, err, "missing")
}

func TestCheckUpdate(t *testing.T) {
	p, err := New(linearHistory(), nil)
	require.NoError(t, err)

	// Branch absent remotely.
	update := p.CheckUpdate(map[string]string{})
	assert.Equal(t, transport.UpdateSet{"stable": {From: transport.RevNull, To: revA}}, update)

	// Branch behind remotely.
	update = p.CheckUpdate(map[string]string{"stable": revB})
	assert.Equal(t, transport.UpdateSet{"stable": {From: revB, To: revA}}, update)

	// Already current.
	update = p.CheckUpdate(map[string]string{"stable": revA})
	assert.Empty(t, update)
}

func TestNeededCommits(t *testing.T) {
	p, err := New(linearHistory(), nil)
	require.NoError(t, err)

	// Whole chain down to the root.
	commits, err := p.neededCommits(transport.RevNull, revA, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{revA, revB, revC}, commits)

	// Fast-forward over one commit.
	commits, err = p.neededCommits(revB, revA, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{revA}, commits)

	commits, err = p.neededCommits(revC, revA, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{revA, revB}, commits)
}

func TestNeededCommitsShallow(t *testing.T) {
	repo := linearHistory()
	delete(repo.commits, revB)
	p, err := New(repo, nil)
	require.NoError(t, err)

	_, err = p.neededCommits(transport.RevNull, revA, nil)
	var shallow *ShallowHistoryError
	require.ErrorAs(t, err, &shallow)
	assert.Equal(t, revA, shallow.Local)
}

func TestNeededCommitsNotDescendant(t *testing.T) {
	p, err := New(linearHistory(), nil)
	require.NoError(t, err)

	_, err = p.neededCommits(revD, revA, nil)
	var diverged *NotDescendantError
	require.ErrorAs(t, err, &diverged)
	assert.Equal(t, revD, diverged.Remote)
}

func writeObject(t *testing.T, repo *fakeRepo, name, content string) string {
	t.Helper()
	path := repo.ObjectPath(name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	fp, err := transport.FingerprintFile(path)
	require.NoError(t, err)
	return fp
}

func TestRetrieve(t *testing.T) {
	fileSum := revD // any checksum-shaped string works for a fake object
	repo := &fakeRepo{
		dir:  t.TempDir(),
		refs: map[string]string{"stable": revA},
		commits: map[string]*ostree.Commit{
			revA: {Checksum: revA},
		},
		reach: map[string][]ostree.ObjectRef{
			revA: {
				{Checksum: revA, Type: ostree.ObjectTypeCommit},
				{Checksum: revB, Type: ostree.ObjectTypeDirTree},
				{Checksum: revC, Type: ostree.ObjectTypeDirMeta},
				{Checksum: fileSum, Type: ostree.ObjectTypeFile},
			},
		},
	}
	fps := map[string]string{
		ostree.ObjectName(revA, ostree.ObjectTypeCommit):     writeObject(t, repo, ostree.ObjectName(revA, ostree.ObjectTypeCommit), "commit"),
		ostree.ObjectName(revA, ostree.ObjectTypeCommitMeta): writeObject(t, repo, ostree.ObjectName(revA, ostree.ObjectTypeCommitMeta), "meta"),
		ostree.ObjectName(revB, ostree.ObjectTypeDirTree):    writeObject(t, repo, ostree.ObjectName(revB, ostree.ObjectTypeDirTree), "tree"),
		ostree.ObjectName(revC, ostree.ObjectTypeDirMeta):    writeObject(t, repo, ostree.ObjectName(revC, ostree.ObjectTypeDirMeta), "dirmeta"),
		ostree.ObjectName(fileSum, ostree.ObjectTypeFileZ):   writeObject(t, repo, ostree.ObjectName(fileSum, ostree.ObjectTypeFileZ), "filez"),
	}

	p, err := New(repo, nil)
	require.NoError(t, err)
	objects, err := p.Retrieve(context.Background(), transport.UpdateSet{
		"stable": {From: transport.RevNull, To: revA},
	})
	require.NoError(t, err)
	require.Len(t, objects, len(fps))

	got := make(map[string]string)
	for _, o := range objects {
		got[o.ObjectName] = o.Checksum
		assert.Equal(t, repo.ObjectPath(o.ObjectName), o.ObjectPath)
	}
	// File objects ship in their archive spelling, commits bring their
	// detached metadata, and every fingerprint matches the disk bytes.
	assert.Equal(t, fps, got)
}

func TestRetrieveNoDetachedMeta(t *testing.T) {
	repo := &fakeRepo{
		dir:     t.TempDir(),
		refs:    map[string]string{"stable": revA},
		commits: map[string]*ostree.Commit{revA: {Checksum: revA}},
		reach: map[string][]ostree.ObjectRef{
			revA: {{Checksum: revA, Type: ostree.ObjectTypeCommit}},
		},
	}
	writeObject(t, repo, ostree.ObjectName(revA, ostree.ObjectTypeCommit), "commit")

	p, err := New(repo, nil)
	require.NoError(t, err)
	objects, err := p.Retrieve(context.Background(), transport.UpdateSet{
		"stable": {From: transport.RevNull, To: revA},
	})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, ostree.ObjectName(revA, ostree.ObjectTypeCommit), objects[0].ObjectName)
}

func TestRetrieveMissingLocalObject(t *testing.T) {
	repo := &fakeRepo{
		dir:     t.TempDir(),
		refs:    map[string]string{"stable": revA},
		commits: map[string]*ostree.Commit{revA: {Checksum: revA}},
		reach: map[string][]ostree.ObjectRef{
			revA: {
				{Checksum: revA, Type: ostree.ObjectTypeCommit},
				{Checksum: revD, Type: ostree.ObjectTypeFile},
			},
		},
	}
	writeObject(t, repo, ostree.ObjectName(revA, ostree.ObjectTypeCommit), "commit")

	p, err := New(repo, nil)
	require.NoError(t, err)
	_, err = p.Retrieve(context.Background(), transport.UpdateSet{
		"stable": {From: transport.RevNull, To: revA},
	})
	var missing *MissingLocalObjectError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, ostree.ObjectName(revD, ostree.ObjectTypeFileZ), missing.ObjectName)
}
