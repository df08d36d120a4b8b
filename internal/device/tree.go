// Package device models the tablet's document tree and its reachability.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/remsync/remsync/internal/rmsdk"
)

const (
	// maxTreeDepth bounds folder nesting. Anything deeper than this is not
	// a real library, it is a cycle the visited set somehow missed or a
	// hostile listing.
	maxTreeDepth = 20

	// maxTreeNodes bounds the total entry count per build.
	maxTreeNodes = 10000
)

var (
	ErrFolderNotFound = errors.New("device: folder not found")
	ErrTreeTooDeep    = errors.New("device: document tree exceeds depth limit")
	ErrTreeTooLarge   = errors.New("device: document tree exceeds entry limit")
)

// Kind distinguishes folders from documents.
type Kind int

const (
	KindFolder Kind = iota + 1
	KindDocument
)

// Node is one entry of a built tree. Children holds both folders and
// documents in the order the device listed them.
type Node struct {
	ID       string
	Name     string
	Kind     Kind
	ParentID string
	FileType string
	Children []*Node
}

// IsFolder reports whether the node is a collection.
func (n *Node) IsFolder() bool { return n.Kind == KindFolder }

// Tree is an immutable snapshot of the device's document hierarchy. Build
// one per listing; never cache across operations, the device has no change
// notifications.
type Tree struct {
	root *Node
	byID map[string]*Node
	docs int
}

// Lister is the listing surface of rmsdk.Client the builder needs.
type Lister interface {
	Documents(ctx context.Context, folderID string) ([]rmsdk.Entry, error)
}

type workItem struct {
	node  *Node
	depth int
}

// BuildTree walks the device's collections depth-first with an explicit
// worklist, children in the order the device listed them. A visited-id set
// plus depth and entry bounds keep a cyclic or malformed listing from
// hanging the walk. Any listing failure aborts the whole build; a partial
// tree is worse than none.
func BuildTree(ctx context.Context, lister Lister) (*Tree, error) {
	root := &Node{ID: rmsdk.RootID, Kind: KindFolder}
	tree := &Tree{
		root: root,
		byID: map[string]*Node{},
	}

	visited := mapset.NewThreadUnsafeSet[string]()
	visited.Add(root.ID)

	stack := []workItem{{node: root, depth: 0}}
	entryCount := 0

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.depth >= maxTreeDepth {
			return nil, fmt.Errorf("%w (%d levels)", ErrTreeTooDeep, maxTreeDepth)
		}

		entries, err := lister.Documents(ctx, item.node.ID)
		if err != nil {
			return nil, fmt.Errorf("list folder %q: %w", item.node.Name, err)
		}

		var subfolders []workItem
		for i := range entries {
			entry := &entries[i]
			if entry.ID == "" {
				slog.Warn("skipping entry without id", "name", entry.VissibleName)
				continue
			}
			if visited.Contains(entry.ID) {
				slog.Warn("skipping repeated entry id", "id", entry.ID, "name", entry.VissibleName)
				continue
			}
			visited.Add(entry.ID)

			entryCount++
			if entryCount > maxTreeNodes {
				return nil, fmt.Errorf("%w (%d entries)", ErrTreeTooLarge, maxTreeNodes)
			}

			node := &Node{
				ID:       entry.ID,
				Name:     entry.VissibleName,
				ParentID: item.node.ID,
				FileType: entry.FileType,
			}
			if entry.IsFolder() {
				node.Kind = KindFolder
				subfolders = append(subfolders, workItem{node: node, depth: item.depth + 1})
			} else {
				node.Kind = KindDocument
				tree.docs++
			}

			item.node.Children = append(item.node.Children, node)
			tree.byID[node.ID] = node
		}

		// push in reverse so the first-listed subfolder is listed next
		for i := len(subfolders) - 1; i >= 0; i-- {
			stack = append(stack, subfolders[i])
		}
	}

	return tree, nil
}

// Root returns the synthetic root node.
func (t *Tree) Root() *Node { return t.root }

// Lookup returns a node by its device id.
func (t *Tree) Lookup(id string) (*Node, bool) {
	if id == rmsdk.RootID {
		return t.root, true
	}
	n, ok := t.byID[id]
	return n, ok
}

// DocumentCount returns the number of documents in the snapshot.
func (t *Tree) DocumentCount() int { return t.docs }

// ResolveFolder maps a folder name to its device id. Matching is exact and
// case sensitive, depth-first in listing order, first match wins; duplicate
// names deeper or later in the walk are unreachable by name. Names
// containing "/" are resolved as a path from the root, segment by segment.
// The empty name is the root.
func (t *Tree) ResolveFolder(name string) (string, error) {
	if name == "" {
		return t.root.ID, nil
	}

	if strings.Contains(name, "/") {
		return t.resolvePath(name)
	}

	// depth-first, children in listing order
	stack := make([]*Node, 0, len(t.root.Children))
	pushFolders(&stack, t.root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Name == name {
			return n.ID, nil
		}
		pushFolders(&stack, n)
	}

	return "", fmt.Errorf("%w: %q", ErrFolderNotFound, name)
}

func (t *Tree) resolvePath(path string) (string, error) {
	current := t.root
segments:
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			continue
		}
		for _, child := range current.Children {
			if child.IsFolder() && child.Name == segment {
				current = child
				continue segments
			}
		}
		return "", fmt.Errorf("%w: %q", ErrFolderNotFound, path)
	}
	return current.ID, nil
}

// pushFolders pushes n's folder children onto the stack in reverse so the
// first-listed child is visited first.
func pushFolders(stack *[]*Node, n *Node) {
	for i := len(n.Children) - 1; i >= 0; i-- {
		if n.Children[i].IsFolder() {
			*stack = append(*stack, n.Children[i])
		}
	}
}

// DocEntry is a flattened view of one document for listings.
type DocEntry struct {
	ID       string
	Name     string
	FileType string
	Path     string // display path, "/" separated, folder names joined
}

// FolderEntry is a flattened view of one folder.
type FolderEntry struct {
	ID   string
	Path string
}

// Documents returns every document in the snapshot, depth-first, with
// display paths.
func (t *Tree) Documents() []DocEntry {
	var out []DocEntry
	t.walk(t.root, "", func(n *Node, path string) {
		if n.Kind == KindDocument {
			out = append(out, DocEntry{ID: n.ID, Name: n.Name, FileType: n.FileType, Path: path})
		}
	})
	return out
}

// Folders returns every folder in the snapshot, depth-first, with display
// paths. The root is excluded.
func (t *Tree) Folders() []FolderEntry {
	var out []FolderEntry
	t.walk(t.root, "", func(n *Node, path string) {
		if n.Kind == KindFolder && n != t.root {
			out = append(out, FolderEntry{ID: n.ID, Path: path})
		}
	})
	return out
}

func (t *Tree) walk(n *Node, prefix string, visit func(*Node, string)) {
	path := n.Name
	if prefix != "" {
		path = prefix + "/" + n.Name
	}
	if n != t.root {
		visit(n, path)
	} else {
		path = ""
	}
	for _, child := range n.Children {
		t.walk(child, path, visit)
	}
}
