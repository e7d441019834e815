// Package filetree keeps an in-memory copy of a remote directory tree in sync
// with the create/update/delete/error events streamed by the file-watch
// socket.
//
// The server only streams events for directories the client subscribed to,
// so the tree tracks which expanded directories hold a watch and issues the
// matching watch/unwatch requests through a Watcher as directories are
// expanded, collapsed and deleted.
//
// All lookups fail soft: unknown paths and events for missing parents are
// ignored. A Tree is not safe for concurrent use.
package filetree

import (
	"sort"

	"director-console/internal/pathutil"
)

// DefaultErrorMessage is shown when an error event carries no message.
const DefaultErrorMessage = "Error opening directory"

// Watcher subscribes to and unsubscribes from directory listings.
type Watcher interface {
	Watch(path string) error
	Unwatch(path string) error
}

type nopWatcher struct{}

func (nopWatcher) Watch(string) error   { return nil }
func (nopWatcher) Unwatch(string) error { return nil }

// Tree is the reconciled directory tree. The root has path "" and is always
// expanded; its watch belongs to the socket session, not to the tree.
type Tree struct {
	root    *Node
	watcher Watcher
	watched map[string]struct{}
	memory  map[string]struct{}
}

// New returns an empty tree. A nil watcher discards watch requests.
func New(w Watcher) *Tree {
	if w == nil {
		w = nopWatcher{}
	}
	return &Tree{
		root:    &Node{Kind: KindDir, Expanded: true},
		watcher: w,
		watched: make(map[string]struct{}),
		memory:  make(map[string]struct{}),
	}
}

// SetWatcher replaces the watcher used for future requests.
func (t *Tree) SetWatcher(w Watcher) {
	if w == nil {
		w = nopWatcher{}
	}
	t.watcher = w
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Resolve walks the tree one basename at a time. It returns nil when a
// segment is missing or an intermediate entry is not a directory.
func (t *Tree) Resolve(path string) *Node {
	cur := t.root
	for _, seg := range pathutil.Segments(path) {
		if !cur.IsDir() {
			return nil
		}
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// NodePath is the inverse of Resolve.
func (t *Tree) NodePath(n *Node) string { return n.Path() }

// Apply dispatches ev to the matching Apply* method.
func (t *Tree) Apply(ev Event) {
	switch e := ev.(type) {
	case Create:
		t.ApplyCreate(e.Info)
	case Update:
		t.ApplyUpdate(e.Path, e.Mode)
	case Delete:
		t.ApplyDelete(e.Path)
	case Error:
		t.ApplyError(e.Path, e.Message)
	default:
		// Unknown and nil events are ignored.
	}
}

// ApplyCreate inserts the entry described by info, replacing any node
// already at that path. The event is dropped when the parent is not a
// directory in the tree.
func (t *Tree) ApplyCreate(info Info) {
	path := pathutil.JoinPaths(pathutil.Segments(info.Path)...)
	if path == "" {
		return
	}
	if old := t.Resolve(path); old != nil {
		if old.Expanded {
			t.Remember(t.ExpandedPaths(path)...)
		}
		t.detach(old, path)
	}

	parentPath, name := pathutil.SplitPath(path)
	parent := t.Resolve(parentPath)
	if parent == nil || !parent.IsDir() {
		return
	}

	n := &Node{
		Name:   name,
		Kind:   info.Kind,
		Mode:   info.Mode,
		Target: info.Target,
		parent: parent,
	}
	i := sort.Search(len(parent.children), func(i int) bool {
		return before(n, parent.children[i])
	})
	parent.children = append(parent.children, nil)
	copy(parent.children[i+1:], parent.children[i:])
	parent.children[i] = n

	if !n.IsDir() {
		t.Forget(path)
		return
	}
	if _, ok := t.memory[path]; ok {
		delete(t.memory, path)
		t.expand(n, path)
	}
}

// ApplyDelete unwatches path and removes its node if present. The unwatch is
// sent even for unknown paths since the server may still hold the watch.
func (t *Tree) ApplyDelete(path string) {
	path = pathutil.JoinPaths(pathutil.Segments(path)...)
	if path == "" {
		return
	}
	_ = t.watcher.Unwatch(path)
	delete(t.watched, path)
	t.Forget(path)
	if n := t.Resolve(path); n != nil {
		t.detach(n, path)
	}
}

// ApplyUpdate refreshes the mode bits of an existing node in place.
func (t *Tree) ApplyUpdate(path string, mode uint32) {
	if n := t.Resolve(path); n != nil {
		n.Mode = mode
	}
}

// ApplyError replaces a directory's children with an inline error marker.
// It reports whether the node was found.
func (t *Tree) ApplyError(path, msg string) bool {
	n := t.Resolve(path)
	if n == nil {
		return false
	}
	if !n.IsDir() {
		return true
	}
	if msg == "" {
		msg = DefaultErrorMessage
	}
	t.dropChildren(n, path)
	n.Err = msg
	return true
}

// Toggle expands a collapsed directory or collapses an expanded one. It is a
// no-op for unknown paths, non-directories and the root.
func (t *Tree) Toggle(path string) {
	if n := t.Resolve(path); n != nil {
		t.ToggleNode(n)
	}
}

// ToggleNode is Toggle for a node already in hand.
func (t *Tree) ToggleNode(n *Node) {
	if n == t.root || !n.IsDir() {
		return
	}
	path := n.Path()
	if n.Expanded {
		t.collapse(n, path)
		return
	}
	t.expand(n, path)
}

func (t *Tree) expand(n *Node, path string) {
	n.children = nil
	n.Err = ""
	n.Expanded = true
	t.watched[path] = struct{}{}
	_ = t.watcher.Watch(path)
}

func (t *Tree) collapse(n *Node, path string) {
	t.dropChildren(n, path)
	n.Expanded = false
	n.Err = ""
	delete(t.watched, path)
	_ = t.watcher.Unwatch(path)
}

// dropChildren clears n's children and unwatches every watched directory
// below it.
func (t *Tree) dropChildren(n *Node, path string) {
	for _, p := range t.watchedUnder(path) {
		if p == path {
			continue
		}
		delete(t.watched, p)
		_ = t.watcher.Unwatch(p)
	}
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
}

// detach removes n from its parent and unwatches n and its watched
// descendants.
func (t *Tree) detach(n *Node, path string) {
	for _, p := range t.watchedUnder(path) {
		delete(t.watched, p)
		_ = t.watcher.Unwatch(p)
	}
	if n.parent != nil {
		n.parent.removeChild(n)
	}
}

// watchedUnder lists watched paths at or below path, deepest first.
func (t *Tree) watchedUnder(path string) []string {
	var out []string
	for p := range t.watched {
		if pathutil.HasPrefix(p, path) {
			out = append(out, p)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// ExpandedPaths returns scope (unless it is the root) when expanded, followed
// by every expanded directory below it in display order.
func (t *Tree) ExpandedPaths(scope string) []string {
	n := t.Resolve(scope)
	if n == nil || !n.Expanded {
		return nil
	}
	var out []string
	var walk func(n *Node, path string)
	walk = func(n *Node, path string) {
		if n != t.root {
			out = append(out, path)
		}
		for _, c := range n.children {
			if c.Expanded {
				walk(c, pathutil.JoinPaths(path, c.Name))
			}
		}
	}
	walk(n, n.Path())
	return out
}

// Remember adds paths to the expansion memory. Each remembered directory is
// expanded once, when its create event arrives.
func (t *Tree) Remember(paths ...string) {
	for _, p := range paths {
		if p != "" {
			t.memory[p] = struct{}{}
		}
	}
}

// Forget drops path and everything below it from the expansion memory.
func (t *Tree) Forget(path string) {
	for p := range t.memory {
		if pathutil.HasPrefix(p, path) {
			delete(t.memory, p)
		}
	}
}

// Pending returns the sorted expansion memory.
func (t *Tree) Pending() []string {
	out := make([]string, 0, len(t.memory))
	for p := range t.memory {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PrepareMove carries the expansion state of oldPath over to newPath so that
// the moved directory re-expands when the server reports it.
func (t *Tree) PrepareMove(oldPath, newPath string) {
	for _, p := range t.ExpandedPaths(oldPath) {
		t.Remember(pathutil.Rebase(p, oldPath, newPath))
	}
}

// Watched returns the sorted set of directories holding a watch.
func (t *Tree) Watched() []string {
	out := make([]string, 0, len(t.watched))
	for p := range t.watched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset drops every node below the root and replaces the expansion memory.
// Watches are forgotten without unwatching, since they belonged to a
// connection that no longer exists.
func (t *Tree) Reset(remember []string) {
	for _, c := range t.root.children {
		c.parent = nil
	}
	t.root.children = nil
	t.root.Err = ""
	t.watched = make(map[string]struct{})
	t.memory = make(map[string]struct{})
	t.Remember(remember...)
}

// Len counts the nodes below the root.
func (t *Tree) Len() int {
	var count func(n *Node) int
	count = func(n *Node) int {
		total := len(n.children)
		for _, c := range n.children {
			total += count(c)
		}
		return total
	}
	return count(t.root)
}

// Walk visits the displayed part of the tree depth first. Children of
// collapsed directories are skipped, as are hidden entries unless showHidden.
func (t *Tree) Walk(showHidden bool, fn func(n *Node, depth int)) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		for _, c := range n.children {
			if c.Hidden() && !showHidden {
				continue
			}
			fn(c, depth)
			if c.Expanded {
				walk(c, depth+1)
			}
		}
	}
	walk(t.root, 0)
}
