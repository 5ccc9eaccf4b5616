// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirios/ostree-upload/modules/ostree"
	"github.com/lirios/ostree-upload/modules/ostree/ostreetest"
)

func TestOpen(t *testing.T) {
	r := ostreetest.Init(t)
	repo, err := ostree.Open(r.Dir)
	require.NoError(t, err)
	assert.Equal(t, ostree.ModeArchive, repo.Mode())
	assert.Equal(t, "archive", repo.Mode().String())
}

func TestOpenBadVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config", []byte("[core]\nrepo_version=2\nmode=archive-z2\n"), 0o644))
	_, err := ostree.Open(dir)
	assert.ErrorContains(t, err, "unsupported repo_version")
}

func TestListRefs(t *testing.T) {
	r := ostreetest.Init(t)
	repo := r.Open(t)

	refs, err := repo.ListRefs()
	require.NoError(t, err)
	assert.Empty(t, refs)

	rev := r.Commit(t, "stable", map[string]string{"a.txt": "alpha"}, nil)
	nested := r.Commit(t, "release/v1", map[string]string{"b.txt": "beta"}, nil)

	refs, err = repo.ListRefs()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"stable": rev, "release/v1": nested}, refs)
}

func TestResolveRev(t *testing.T) {
	r := ostreetest.Init(t)
	rev := r.Commit(t, "stable", map[string]string{"a.txt": "alpha"}, nil)
	repo := r.Open(t)

	got, err := repo.ResolveRev("stable")
	require.NoError(t, err)
	assert.Equal(t, rev, got)

	got, err = repo.ResolveRev(rev)
	require.NoError(t, err)
	assert.Equal(t, rev, got)

	_, err = repo.ResolveRev("missing")
	assert.True(t, ostree.IsErrRevNotFound(err))

	// A well-formed revision with no commit object behind it.
	_, err = repo.ResolveRev("00000000000000000000000000000000000000000000000000000000000000aa")
	assert.True(t, ostree.IsErrRevNotFound(err))
}

func TestSetRefImmediate(t *testing.T) {
	r := ostreetest.Init(t)
	rev := r.Commit(t, "stable", map[string]string{"a.txt": "alpha"}, nil)
	repo := r.Open(t)

	require.NoError(t, repo.SetRefImmediate("release/v2", rev))
	got, err := repo.ResolveRev("release/v2")
	require.NoError(t, err)
	assert.Equal(t, rev, got)

	assert.Error(t, repo.SetRefImmediate("stable", "not-a-revision"))
}

func TestLoadCommit(t *testing.T) {
	r := ostreetest.Init(t)
	rev1 := r.Commit(t, "stable", map[string]string{"a.txt": "alpha"}, &ostreetest.CommitOptions{Subject: "first"})
	rev2 := r.Commit(t, "stable", map[string]string{"a.txt": "alpha", "b.txt": "beta"}, &ostreetest.CommitOptions{Parent: rev1})
	repo := r.Open(t)

	c1, err := repo.LoadCommit(rev1)
	require.NoError(t, err)
	assert.False(t, c1.HasParent())
	assert.Len(t, c1.RootTree, 64)
	assert.Len(t, c1.RootMeta, 64)

	c2, err := repo.LoadCommit(rev2)
	require.NoError(t, err)
	assert.Equal(t, rev1, c2.Parent)
	assert.NotEqual(t, c1.RootTree, c2.RootTree)

	_, err = repo.LoadCommit("00000000000000000000000000000000000000000000000000000000000000aa")
	assert.True(t, ostree.IsNoSuchObject(err))
}

func TestTraverse(t *testing.T) {
	r := ostreetest.Init(t)
	rev := r.Commit(t, "stable", map[string]string{
		"a.txt":       "alpha",
		"sub/b.txt":   "beta",
		"sub/c.txt":   "gamma",
		"other/d.txt": "delta",
	}, nil)
	repo := r.Open(t)

	reachable, err := repo.Traverse(rev)
	require.NoError(t, err)
	require.NotEmpty(t, reachable)
	assert.Equal(t, ostree.ObjectRef{Checksum: rev, Type: ostree.ObjectTypeCommit}, reachable[0])

	byType := make(map[ostree.ObjectType]int)
	for _, ref := range reachable {
		byType[ref.Type]++
	}
	assert.Equal(t, 1, byType[ostree.ObjectTypeCommit])
	assert.Equal(t, 4, byType[ostree.ObjectTypeFile])
	// Root plus two subdirectories; the shared dirmeta dedupes to one.
	assert.Equal(t, 3, byType[ostree.ObjectTypeDirTree])
	assert.Equal(t, 1, byType[ostree.ObjectTypeDirMeta])
}

func TestTraverseMissingCommit(t *testing.T) {
	r := ostreetest.Init(t)
	repo := r.Open(t)
	_, err := repo.Traverse("00000000000000000000000000000000000000000000000000000000000000aa")
	assert.True(t, ostree.IsNoSuchObject(err))
}

func TestPrune(t *testing.T) {
	r := ostreetest.Init(t)
	rev1 := r.Commit(t, "stable", map[string]string{"a.txt": "alpha"}, &ostreetest.CommitOptions{DetachedMeta: []byte("sig")})
	rev2 := r.Commit(t, "stable", map[string]string{"a.txt": "alpha", "b.txt": "beta"}, &ostreetest.CommitOptions{Parent: rev1})
	orphan := r.AddFile(t, "orphan content")
	repo := r.Open(t)

	result, err := repo.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.Greater(t, result.Size, int64(0))

	_, err = os.Stat(r.ObjectPath(ostree.ObjectName(orphan, ostree.ObjectTypeFileZ)))
	assert.True(t, os.IsNotExist(err))

	// Ancestry and detached metadata survive.
	assert.True(t, repo.HasObject(rev1, ostree.ObjectTypeCommit))
	assert.True(t, repo.HasObject(rev1, ostree.ObjectTypeCommitMeta))
	assert.True(t, repo.HasObject(rev2, ostree.ObjectTypeCommit))

	reachable, err := repo.Traverse(rev2)
	require.NoError(t, err)
	for _, ref := range reachable {
		typ := ref.Type
		if typ == ostree.ObjectTypeFile {
			typ = ostree.ObjectTypeFileZ
		}
		assert.True(t, repo.HasObject(ref.Checksum, typ), "object %s.%s pruned", ref.Checksum, typ)
	}
}

func TestObjectName(t *testing.T) {
	name := ostree.ObjectName("ab12", ostree.ObjectTypeFileZ)
	assert.Equal(t, "ab12.filez", name)
	assert.True(t, ostree.IsChecksum("00000000000000000000000000000000000000000000000000000000000000aa"))
	assert.False(t, ostree.IsChecksum("xyz"))
	assert.False(t, ostree.IsChecksum("ABCD"))
}
