package filetree

import "strings"

// Kind is the type of a filesystem entry as reported by the watch feed.
type Kind int

const (
	KindOther Kind = iota
	KindDir
	KindFile
	KindLink
)

// ParseKind maps the wire "filetype" string to a Kind. Unknown values are
// treated as KindOther.
func ParseKind(s string) Kind {
	switch s {
	case "dir":
		return KindDir
	case "file":
		return KindFile
	case "link":
		return KindLink
	default:
		return KindOther
	}
}

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindLink:
		return "link"
	default:
		return "other"
	}
}

// Info describes an entry carried by a create event.
type Info struct {
	Path   string
	Kind   Kind
	Mode   uint32
	Target string
}

// Node is one displayed filesystem entry. Nodes are owned by their Tree and
// must only be mutated through it.
type Node struct {
	Name     string
	Kind     Kind
	Mode     uint32
	Target   string
	Expanded bool
	// Err is the inline error marker shown in place of a directory's
	// children when the server could not list it.
	Err string

	parent   *Node
	children []*Node
}

// IsDir reports whether the node can hold children.
func (n *Node) IsDir() bool { return n.Kind == KindDir }

// Executable reports whether any execute bit is set.
func (n *Node) Executable() bool { return n.Mode&0o111 != 0 }

// Hidden reports whether the basename starts with a dot.
func (n *Node) Hidden() bool { return strings.HasPrefix(n.Name, ".") }

// Parent returns the containing directory, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the sorted children. The slice must not be modified.
func (n *Node) Children() []*Node { return n.children }

// Path joins the basenames from the root down to n.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// before is the sibling order: directories first, then basename in byte
// order.
func before(a, b *Node) bool {
	if a.IsDir() != b.IsDir() {
		return a.IsDir()
	}
	return a.Name < b.Name
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (n *Node) removeChild(c *Node) {
	for i, cur := range n.children {
		if cur == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return
		}
	}
}
