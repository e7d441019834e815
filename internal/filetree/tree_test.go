package filetree

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWatcher struct {
	calls []string
}

func (w *recordingWatcher) Watch(path string) error {
	w.calls = append(w.calls, "add "+path)
	return nil
}

func (w *recordingWatcher) Unwatch(path string) error {
	w.calls = append(w.calls, "remove "+path)
	return nil
}

// dump lists every node in the tree, expanded or not.
func dump(t *Tree) []string {
	var out []string
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.children {
			out = append(out, fmt.Sprintf("%s %s exec=%v open=%v", c.Path(), c.Kind, c.Executable(), c.Expanded))
			walk(c)
		}
	}
	walk(t.root)
	return out
}

func dir(path string) Create  { return Create{Info{Path: path, Kind: KindDir, Mode: 0o755}} }
func file(path string) Create { return Create{Info{Path: path, Kind: KindFile, Mode: 0o644}} }

func TestResolveAndNodePath(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("public"))
	tree.Apply(dir("public/css"))
	tree.Apply(file("public/css/site.css"))
	tree.Apply(file("run.sh"))

	n := tree.Resolve("public/css/site.css")
	require.NotNil(t, n)
	assert.Equal(t, "site.css", n.Name)
	assert.Equal(t, "public/css/site.css", tree.NodePath(n))

	assert.Same(t, tree.Root(), tree.Resolve(""))
	assert.Equal(t, "", tree.NodePath(tree.Root()))
	assert.Nil(t, tree.Resolve("public/js"))
	assert.Nil(t, tree.Resolve("run.sh/child"), "files cannot have children")
	assert.NotNil(t, tree.Resolve("./public//css"))
}

func TestCreateThenDeleteLeavesNoTrace(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(file("index.html"))
	before := dump(tree)

	tree.Apply(dir("app"))
	tree.Toggle("app")
	tree.Apply(file("app/main.py"))
	tree.Apply(Delete{Path: "app"})

	if diff := cmp.Diff(before, dump(tree)); diff != "" {
		t.Errorf("tree changed (-want +got):\n%s", diff)
	}
	assert.Empty(t, tree.Watched())
	assert.Equal(t, "remove app", w.calls[len(w.calls)-1])
}

func TestDeleteUnknownPathStillUnwatches(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(Delete{Path: "ghost"})
	assert.Equal(t, []string{"remove ghost"}, w.calls)
	assert.Zero(t, tree.Len())
}

func TestDuplicateCreateIsIdempotent(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("public"))
	tree.Apply(file("public/a.txt"))
	once := dump(tree)

	tree.Apply(file("public/a.txt"))
	if diff := cmp.Diff(once, dump(tree)); diff != "" {
		t.Errorf("duplicate create changed tree (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, tree.Len())
}

func TestDuplicateCreateKeepsDirectoryExpanded(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(dir("public"))
	tree.Toggle("public")
	tree.Apply(file("public/a.txt"))

	tree.Apply(dir("public"))

	n := tree.Resolve("public")
	require.NotNil(t, n)
	assert.True(t, n.Expanded)
	assert.Equal(t, []string{"public"}, tree.Watched())
	assert.Empty(t, tree.Pending())
	assert.Equal(t, []string{"add public", "remove public", "add public"}, w.calls)
}

func TestSiblingOrdering(t *testing.T) {
	tree := New(nil)
	rng := rand.New(rand.NewSource(42))
	names := []string{"b", "A", "a", "Z", "z", "_x", "10", "2", "lib", "node_modules", ".env"}
	for i := 0; i < 200; i++ {
		name := names[rng.Intn(len(names))]
		switch rng.Intn(3) {
		case 0:
			tree.Apply(dir(name))
		case 1:
			tree.Apply(file(name))
		default:
			tree.Apply(Delete{Path: name})
		}

		var dirs, files []string
		seenFile := false
		for _, c := range tree.Root().Children() {
			if c.IsDir() {
				require.False(t, seenFile, "directory %q after a file", c.Name)
				dirs = append(dirs, c.Name)
			} else {
				seenFile = true
				files = append(files, c.Name)
			}
		}
		require.True(t, sort.StringsAreSorted(dirs), "dirs out of order: %v", dirs)
		require.True(t, sort.StringsAreSorted(files), "files out of order: %v", files)
	}
}

func TestExpansionRestoredAfterReconnect(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(dir("a"))
	tree.Toggle("a")
	tree.Apply(dir("a/b"))
	tree.Toggle("a/b")
	require.Equal(t, []string{"a", "a/b"}, tree.ExpandedPaths(""))

	tree.Reset(tree.ExpandedPaths(""))
	assert.Zero(t, tree.Len())
	assert.Empty(t, tree.Watched())
	assert.Equal(t, []string{"a", "a/b"}, tree.Pending())

	w.calls = nil
	tree.Apply(dir("a"))
	tree.Apply(dir("a/b"))

	assert.True(t, tree.Resolve("a").Expanded)
	assert.True(t, tree.Resolve("a/b").Expanded)
	assert.Empty(t, tree.Pending())
	assert.Equal(t, []string{"add a", "add a/b"}, w.calls)
}

func TestCreateUnderMissingParentIsDropped(t *testing.T) {
	tree := New(nil)
	tree.Apply(file("docs/readme.txt"))
	assert.Zero(t, tree.Len())

	tree.Apply(dir("docs"))
	tree.Apply(file("docs/readme.txt"))

	n := tree.Resolve("docs/readme.txt")
	require.NotNil(t, n)
	assert.Same(t, tree.Resolve("docs"), n.Parent())
}

func TestCreateUnderFileIsDropped(t *testing.T) {
	tree := New(nil)
	tree.Apply(file("notes"))
	tree.Apply(file("notes/x"))
	assert.Equal(t, 1, tree.Len())
}

func TestUpdateTogglesExecutableInPlace(t *testing.T) {
	tree := New(nil)
	tree.Apply(file("a.sh"))
	tree.Apply(file("b.sh"))
	tree.Apply(file("c.sh"))
	require.False(t, tree.Resolve("b.sh").Executable())

	tree.Apply(Update{Path: "b.sh", Mode: 0o755})

	children := tree.Root().Children()
	assert.Equal(t, "b.sh", children[1].Name)
	assert.True(t, children[1].Executable())

	tree.Apply(Update{Path: "b.sh", Mode: 0o644})
	assert.False(t, tree.Resolve("b.sh").Executable())

	tree.Apply(Update{Path: "missing", Mode: 0o755})
	assert.Equal(t, 3, tree.Len())
}

func TestToggle(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(dir("a"))
	tree.Apply(file("f"))

	tree.Toggle("f")
	tree.Toggle("")
	tree.Toggle("missing")
	assert.Empty(t, w.calls)

	tree.Toggle("a")
	tree.Apply(dir("a/b"))
	tree.Toggle("a/b")
	tree.Apply(file("a/b/c"))
	assert.Equal(t, []string{"a", "a/b"}, tree.Watched())

	tree.Toggle("a")
	a := tree.Resolve("a")
	assert.False(t, a.Expanded)
	assert.Empty(t, a.Children())
	assert.Empty(t, tree.Watched())
	assert.Equal(t, []string{"add a", "add a/b", "remove a/b", "remove a"}, w.calls)
}

func TestErrorMarker(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("secret"))
	tree.Toggle("secret")
	tree.Apply(file("secret/x"))

	tree.Apply(Error{Path: "secret"})

	n := tree.Resolve("secret")
	require.NotNil(t, n)
	assert.Equal(t, DefaultErrorMessage, n.Err)
	assert.Empty(t, n.Children())
	assert.True(t, n.Expanded)

	assert.False(t, tree.ApplyError("nope", "boom"))

	tree.Toggle("secret")
	tree.Toggle("secret")
	assert.Empty(t, tree.Resolve("secret").Err)
}

func TestPrepareMove(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("old"))
	tree.Toggle("old")
	tree.Apply(dir("old/sub"))
	tree.Toggle("old/sub")
	tree.Apply(dir("old/closed"))

	tree.PrepareMove("old", "new")
	assert.Equal(t, []string{"new", "new/sub"}, tree.Pending())

	tree.Apply(Delete{Path: "old"})
	tree.Apply(dir("new"))
	tree.Apply(dir("new/sub"))
	assert.Equal(t, []string{"new", "new/sub"}, tree.ExpandedPaths(""))
	assert.Equal(t, []string{"new/sub"}, tree.ExpandedPaths("new/sub"))
}

func TestWalkSkipsHiddenAndCollapsed(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("open"))
	tree.Toggle("open")
	tree.Apply(file("open/x"))
	tree.Apply(dir("shut"))
	tree.Apply(file("shut/y"))
	tree.Apply(file(".env"))

	var got []string
	tree.Walk(false, func(n *Node, depth int) {
		got = append(got, fmt.Sprintf("%d:%s", depth, n.Path()))
	})
	assert.Equal(t, []string{"0:open", "1:open/x", "0:shut"}, got)

	got = nil
	tree.Walk(true, func(n *Node, depth int) { got = append(got, n.Name) })
	assert.Contains(t, got, ".env")
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindDir, ParseKind("dir"))
	assert.Equal(t, KindLink, ParseKind("link"))
	assert.Equal(t, KindOther, ParseKind("fifo"))
	assert.Equal(t, "file", ParseKind("file").String())
}

func TestReplacingDirectoryWithFileForgetsExpansion(t *testing.T) {
	w := &recordingWatcher{}
	tree := New(w)
	tree.Apply(dir("a"))
	tree.Toggle("a")
	tree.Apply(dir("a/b"))
	tree.Toggle("a/b")

	tree.Apply(file("a"))
	assert.Empty(t, tree.Pending())
	assert.Empty(t, tree.Watched())

	tree.Apply(Delete{Path: "a"})
	tree.Apply(dir("a"))
	tree.Toggle("a")
	tree.Apply(dir("a/b"))
	assert.False(t, tree.Resolve("a/b").Expanded)
	assert.Equal(t, []string{"a"}, tree.Watched())
}

func TestDeleteForgetsExpansionBelow(t *testing.T) {
	tree := New(nil)
	tree.Remember("a", "a/b", "ab")

	tree.Apply(Delete{Path: "a"})
	assert.Equal(t, []string{"ab"}, tree.Pending())

	tree.Apply(dir("a"))
	assert.False(t, tree.Resolve("a").Expanded)
}

func TestApplyIgnoresUnknownEvents(t *testing.T) {
	tree := New(nil)
	tree.Apply(dir("public"))
	assert.NotPanics(t, func() { tree.Apply(nil) })
	assert.Equal(t, 1, tree.Len())
}
