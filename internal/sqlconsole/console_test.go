package sqlconsole

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryFunc func(ctx context.Context, sql string) (string, error)

func (f queryFunc) Query(ctx context.Context, sql string) (string, error) { return f(ctx, sql) }

func echo() Querier {
	return queryFunc(func(_ context.Context, sql string) (string, error) { return "ran " + sql, nil })
}

func TestSubmit(t *testing.T) {
	c := New(echo(), nil)
	out, err := c.Submit(context.Background(), "SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, "ran SELECT 1;", out)

	failing := New(queryFunc(func(context.Context, string) (string, error) {
		return "", errors.New("502 Bad Gateway")
	}), nil)
	out, err = failing.Submit(context.Background(), "SELECT 1;")
	assert.Error(t, err)
	assert.Equal(t, ServerError, out)
	assert.Equal(t, []string{"SELECT 1;"}, failing.History(), "failed statements are kept")
}

func TestHistorySkipsConsecutiveDuplicates(t *testing.T) {
	c := New(echo(), nil)
	for _, sql := range []string{"a", "a", "b", "a"} {
		_, err := c.Submit(context.Background(), sql)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "a"}, c.History())
}

func TestHistoryNavigation(t *testing.T) {
	c := New(echo(), nil)

	line, ok := c.Up("typed")
	assert.False(t, ok, "no history yet")
	assert.Equal(t, "typed", line)
	_, ok = c.Down()
	assert.False(t, ok)

	for _, sql := range []string{"one", "two", "three"} {
		_, err := c.Submit(context.Background(), sql)
		require.NoError(t, err)
	}

	steps := []struct {
		up   bool
		want string
		ok   bool
	}{
		{true, "three", true},
		{true, "two", true},
		{true, "one", true},
		{true, "one", false},
		{false, "two", true},
		{false, "three", true},
		{false, "draft", true},
	}
	_, _ = c.Up("draft")
	_, _ = c.Down()
	for i, s := range steps {
		var line string
		var ok bool
		if s.up {
			line, ok = c.Up("draft")
		} else {
			line, ok = c.Down()
		}
		assert.Equal(t, s.want, line, "step %d", i)
		assert.Equal(t, s.ok, ok, "step %d", i)
	}

	_, ok = c.Down()
	assert.False(t, ok, "back on the edited line")

	_, err := c.Submit(context.Background(), "four")
	require.NoError(t, err)
	line, ok = c.Up("")
	assert.True(t, ok)
	assert.Equal(t, "four", line, "submitting resets browsing")
}

func TestRunLoop(t *testing.T) {
	var queries []string
	c := New(queryFunc(func(_ context.Context, sql string) (string, error) {
		queries = append(queries, sql)
		return " ?column? \n----------\n        1\n", nil
	}), nil)

	in := strings.NewReader("SELECT 1;\r" + "\x1b[A\r" + "SELX\x7fECT 2;\x03" + "\x1b[A\x1b[B\r" + "\x04")
	var out strings.Builder
	require.NoError(t, c.Run(context.Background(), in, &out))

	assert.Equal(t, []string{"SELECT 1;", "SELECT 1;"}, queries)
	assert.Equal(t, []string{"SELECT 1;"}, c.History())
	assert.Contains(t, out.String(), Prompt)
	assert.Contains(t, out.String(), "----------\r\n        1\r\n")
	assert.Contains(t, out.String(), "^C")
}
