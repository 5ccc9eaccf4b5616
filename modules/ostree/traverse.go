// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package ostree

// Traverse returns every object reachable from the given commit: the
// commit itself, then dirtrees, dirmetas and files in discovery order.
// The walk over subtrees is iterative; directory trees can be deep.
func (r *Repo) Traverse(rev string) ([]ObjectRef, error) {
	commit, err := r.LoadCommit(rev)
	if err != nil {
		return nil, err
	}
	out := []ObjectRef{{Checksum: rev, Type: ObjectTypeCommit}}
	seen := map[ObjectRef]bool{out[0]: true}
	add := func(ref ObjectRef) bool {
		if seen[ref] {
			return false
		}
		seen[ref] = true
		out = append(out, ref)
		return true
	}

	type subtree struct{ tree, meta string }
	queue := []subtree{{commit.RootTree, commit.RootMeta}}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]
		treeRef := ObjectRef{Checksum: st.tree, Type: ObjectTypeDirTree}
		walk := add(treeRef)
		add(ObjectRef{Checksum: st.meta, Type: ObjectTypeDirMeta})
		if !walk {
			continue
		}
		tree, err := r.LoadDirTree(st.tree)
		if err != nil {
			return nil, err
		}
		for _, f := range tree.Files {
			add(ObjectRef{Checksum: f.Checksum, Type: ObjectTypeFile})
		}
		for _, d := range tree.Dirs {
			queue = append(queue, subtree{d.Tree, d.Meta})
		}
	}
	return out, nil
}
