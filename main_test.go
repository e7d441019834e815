package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"director-console/internal/filetree"
	"director-console/internal/sqlconsole"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"tree", "ui", "term", "logs", "status", "sql", "edit", "cat", "put",
		"touch", "mkdir", "rm", "mv", "chmod", "upload", "zip", "restart", "settings"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	cmd, _, err := rootCmd.Find([]string{"settings", "set"})
	require.NoError(t, err)
	assert.Equal(t, "true", cmd.Annotations[offline])
}

func TestTreeLabel(t *testing.T) {
	tree := filetree.New(nil)
	tree.ApplyCreate(filetree.Info{Path: "public", Kind: filetree.KindDir, Mode: 0o755})
	tree.ApplyCreate(filetree.Info{Path: "run.sh", Kind: filetree.KindFile, Mode: 0o755})
	tree.ApplyCreate(filetree.Info{Path: "link", Kind: filetree.KindLink, Target: "public"})
	tree.ApplyCreate(filetree.Info{Path: "notes.txt", Kind: filetree.KindFile, Mode: 0o644})

	var labels []string
	tree.Walk(false, func(n *filetree.Node, depth int) { labels = append(labels, treeLabel(n)) })
	assert.Equal(t, []string{"public/", "link -> public", "notes.txt", "run.sh*"}, labels)
}

func TestChoicesHelp(t *testing.T) {
	help := choicesHelp()
	assert.Contains(t, help, "layout-theme: light, dark")
	assert.Contains(t, help, `editor-keybinding: "", ace/keyboard/vim, ace/keyboard/emacs`)
	assert.Contains(t, help, "show-hidden: true, false")
}

type queryFunc func(ctx context.Context, sql string) (string, error)

func (f queryFunc) Query(ctx context.Context, sql string) (string, error) { return f(ctx, sql) }

func TestRunSQLLines(t *testing.T) {
	console := sqlconsole.New(queryFunc(func(_ context.Context, sql string) (string, error) {
		if strings.HasPrefix(sql, "BROKEN") {
			return "", errors.New("502")
		}
		return "ok: " + sql + "\n", nil
	}), nil)

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("SELECT 1;\n\nSELECT 2;\n"))
	cmd.SetContext(context.Background())
	require.NoError(t, runSQLLines(cmd, console))
	assert.Equal(t, "ok: SELECT 1;\nok: SELECT 2;\n", out.String())

	out.Reset()
	cmd.SetIn(strings.NewReader("BROKEN\n"))
	assert.Error(t, runSQLLines(cmd, console))
	assert.Equal(t, sqlconsole.ServerError+"\n", out.String())
}
