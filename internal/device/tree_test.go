package device

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remsync/remsync/internal/rmsdk"
)

type fakeLister struct {
	listings map[string][]rmsdk.Entry
	errs     map[string]error
	calls    []string
}

func (f *fakeLister) Documents(_ context.Context, folderID string) ([]rmsdk.Entry, error) {
	f.calls = append(f.calls, folderID)
	if err, ok := f.errs[folderID]; ok {
		return nil, err
	}
	return f.listings[folderID], nil
}

func folder(id, parent, name string) rmsdk.Entry {
	return rmsdk.Entry{ID: id, ParentID: parent, VissibleName: name, Type: rmsdk.EntryTypeCollection}
}

func doc(id, parent, name, fileType string) rmsdk.Entry {
	return rmsdk.Entry{ID: id, ParentID: parent, VissibleName: name, Type: rmsdk.EntryTypeDocument, FileType: fileType}
}

func libraryFixture() *fakeLister {
	return &fakeLister{listings: map[string][]rmsdk.Entry{
		rmsdk.RootID: {
			folder("f-books", "", "Books"),
			doc("d-root", "", "Quick Note", "pdf"),
			folder("f-arch", "", "Papers"),
		},
		"f-books": {
			folder("f-calibre", "f-books", "Calibre"),
			doc("d-dune", "f-books", "Dune", "epub"),
		},
		"f-arch": {
			doc("d-paper", "f-arch", "Attention Is All You Need", "pdf"),
			folder("f-calibre2", "f-arch", "Calibre"),
		},
		"f-calibre":  {doc("d-conv", "f-calibre", "Converted", "pdf")},
		"f-calibre2": {},
	}}
}

func TestBuildTree(t *testing.T) {
	lister := libraryFixture()
	tree, err := BuildTree(context.Background(), lister)
	require.NoError(t, err)

	assert.Equal(t, 4, tree.DocumentCount())

	t.Run("every id appears once with one parent", func(t *testing.T) {
		seen := map[string]string{}
		var walk func(n *Node)
		walk = func(n *Node) {
			for _, c := range n.Children {
				_, dup := seen[c.ID]
				assert.False(t, dup, "id %s appears twice", c.ID)
				seen[c.ID] = n.ID
				assert.Equal(t, n.ID, c.ParentID)
				walk(c)
			}
		}
		walk(tree.Root())
		assert.Len(t, seen, 8)
	})

	t.Run("children keep listing order", func(t *testing.T) {
		root := tree.Root()
		require.Len(t, root.Children, 3)
		assert.Equal(t, "Books", root.Children[0].Name)
		assert.Equal(t, "Quick Note", root.Children[1].Name)
		assert.Equal(t, "Papers", root.Children[2].Name)
	})

	t.Run("lookup by id", func(t *testing.T) {
		n, ok := tree.Lookup("d-dune")
		require.True(t, ok)
		assert.Equal(t, "Dune", n.Name)
		assert.Equal(t, "epub", n.FileType)

		_, ok = tree.Lookup("nope")
		assert.False(t, ok)

		root, ok := tree.Lookup(rmsdk.RootID)
		require.True(t, ok)
		assert.Same(t, tree.Root(), root)
	})

	t.Run("documents flattened with paths", func(t *testing.T) {
		docs := tree.Documents()
		require.Len(t, docs, 4)

		paths := make([]string, 0, len(docs))
		for _, d := range docs {
			paths = append(paths, d.Path)
		}
		assert.Equal(t, []string{
			"Books/Calibre/Converted",
			"Books/Dune",
			"Quick Note",
			"Papers/Attention Is All You Need",
		}, paths)
	})

	t.Run("folders flattened with paths", func(t *testing.T) {
		folders := tree.Folders()
		paths := make([]string, 0, len(folders))
		for _, f := range folders {
			paths = append(paths, f.Path)
		}
		assert.Equal(t, []string{"Books", "Books/Calibre", "Papers", "Papers/Calibre"}, paths)
	})
}

func TestBuildTree_ListingFailureAbortsBuild(t *testing.T) {
	lister := libraryFixture()
	lister.errs = map[string]error{"f-books": errors.New("device hiccup")}

	_, err := BuildTree(context.Background(), lister)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device hiccup")
}

func TestBuildTree_CyclicListingTerminates(t *testing.T) {
	// f-loop lists itself as its own child; the visited set must break the
	// cycle instead of looping forever.
	lister := &fakeLister{listings: map[string][]rmsdk.Entry{
		rmsdk.RootID: {folder("f-loop", "", "Loop")},
		"f-loop":     {folder("f-loop", "f-loop", "Loop"), doc("d-1", "f-loop", "Trapped", "pdf")},
	}}

	tree, err := BuildTree(context.Background(), lister)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.DocumentCount())

	n, ok := tree.Lookup("f-loop")
	require.True(t, ok)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "Trapped", n.Children[0].Name)
}

func TestBuildTree_DepthBound(t *testing.T) {
	// a fresh folder id per level defeats the visited set, so the depth
	// bound has to stop the walk
	listings := map[string][]rmsdk.Entry{}
	parent := rmsdk.RootID
	for i := 0; i < maxTreeDepth+2; i++ {
		id := fmt.Sprintf("f-%d", i)
		listings[parent] = []rmsdk.Entry{folder(id, parent, fmt.Sprintf("Level %d", i))}
		parent = id
	}
	listings[parent] = nil

	_, err := BuildTree(context.Background(), &fakeLister{listings: listings})
	assert.ErrorIs(t, err, ErrTreeTooDeep)
}

func TestBuildTree_NodeBound(t *testing.T) {
	entries := make([]rmsdk.Entry, 0, maxTreeNodes+1)
	for i := 0; i <= maxTreeNodes; i++ {
		id := fmt.Sprintf("d-%d", i)
		entries = append(entries, doc(id, "", id, "pdf"))
	}
	lister := &fakeLister{listings: map[string][]rmsdk.Entry{rmsdk.RootID: entries}}

	_, err := BuildTree(context.Background(), lister)
	assert.ErrorIs(t, err, ErrTreeTooLarge)
}

func TestBuildTree_SkipsMalformedAndDuplicateEntries(t *testing.T) {
	lister := &fakeLister{listings: map[string][]rmsdk.Entry{
		rmsdk.RootID: {
			doc("", "", "No Id", "pdf"),
			doc("d-1", "", "Kept", "pdf"),
			doc("d-1", "", "Duplicate Of Kept", "pdf"),
		},
	}}

	tree, err := BuildTree(context.Background(), lister)
	require.NoError(t, err)
	require.Len(t, tree.Root().Children, 1)
	assert.Equal(t, "Kept", tree.Root().Children[0].Name)
}

func TestResolveFolder(t *testing.T) {
	tree, err := BuildTree(context.Background(), libraryFixture())
	require.NoError(t, err)

	t.Run("empty name is root", func(t *testing.T) {
		id, err := tree.ResolveFolder("")
		require.NoError(t, err)
		assert.Equal(t, rmsdk.RootID, id)
	})

	t.Run("exact match", func(t *testing.T) {
		id, err := tree.ResolveFolder("Papers")
		require.NoError(t, err)
		assert.Equal(t, "f-arch", id)
	})

	t.Run("duplicate names resolve to first match depth-first", func(t *testing.T) {
		// "Calibre" exists under Books (listed first) and under Papers;
		// depth-first order reaches Books/Calibre before Papers
		id, err := tree.ResolveFolder("Calibre")
		require.NoError(t, err)
		assert.Equal(t, "f-calibre", id)

		// deterministic across repeated calls
		for i := 0; i < 3; i++ {
			again, err := tree.ResolveFolder("Calibre")
			require.NoError(t, err)
			assert.Equal(t, id, again)
		}
	})

	t.Run("case sensitive, no normalization", func(t *testing.T) {
		_, err := tree.ResolveFolder("books")
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("document names never match", func(t *testing.T) {
		_, err := tree.ResolveFolder("Dune")
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("path resolution", func(t *testing.T) {
		id, err := tree.ResolveFolder("Books/Calibre")
		require.NoError(t, err)
		assert.Equal(t, "f-calibre", id)

		id, err = tree.ResolveFolder("Papers/Calibre")
		require.NoError(t, err)
		assert.Equal(t, "f-calibre2", id)

		_, err = tree.ResolveFolder("Books/Missing")
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := tree.ResolveFolder("Archive")
		require.ErrorIs(t, err, ErrFolderNotFound)
		assert.Contains(t, err.Error(), "Archive")
	})
}
