package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path, parent, base string
	}{
		{"a/b/c", "a/b", "c"},
		{"c", "", "c"},
		{"public/index.html", "public", "index.html"},
		{"", "", ""},
	}
	for _, tt := range tests {
		parent, base := SplitPath(tt.path)
		assert.Equal(t, tt.parent, parent, "parent of %q", tt.path)
		assert.Equal(t, tt.base, base, "base of %q", tt.path)
	}
}

func TestJoinPaths(t *testing.T) {
	assert.Equal(t, "a/b", JoinPaths("a/", "b"))
	assert.Equal(t, "b", JoinPaths("", "b"))
	assert.Equal(t, "a/b/c", JoinPaths("a//", "", "b", "c/"))
	assert.Equal(t, "", JoinPaths())
}

func TestSplitJoinRoundTrip(t *testing.T) {
	for _, p := range []string{"a", "a/b", "public/css/site.css", ".env"} {
		parent, base := SplitPath(p)
		if got := JoinPaths(parent, base); got != p {
			t.Errorf("Expected %q after round trip, got %q", p, got)
		}
	}
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Segments("./a//b/"))
	assert.Empty(t, Segments(""))
	assert.Empty(t, Segments("."))
}

func TestRebase(t *testing.T) {
	assert.Equal(t, "new/x", Rebase("old/x", "old", "new"))
	assert.Equal(t, "new", Rebase("old", "old", "new"))
	assert.Equal(t, "older/x", Rebase("older/x", "old", "new"))
	assert.Equal(t, "p/a/b", Rebase("a/b", "", "p"))
	assert.True(t, HasPrefix("a/b", ""))
	assert.False(t, HasPrefix("ab", "a"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("public/.htaccess"))
	assert.False(t, IsHidden("public/index.html"))
}
