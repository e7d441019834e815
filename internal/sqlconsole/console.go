// Package sqlconsole is a line-oriented shell over a site's database.
package sqlconsole

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ServerError is the output shown when a query request fails.
const ServerError = "Server Error"

// Querier runs SQL. *api.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string) (string, error)
}

// Console keeps the command history and runs statements.
type Console struct {
	querier Querier
	log     *zap.Logger

	mu      sync.Mutex
	history []string
	// index is the history entry being shown, or -1 when editing a new
	// line.
	index int
	// prevLine is the line being edited before browsing began.
	prevLine string
}

// New returns an empty console.
func New(q Querier, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{querier: q, log: log.Named("sql"), index: -1}
}

// Submit records sql in the history and runs it. Query failures are
// returned as ServerError output along with the error.
func (c *Console) Submit(ctx context.Context, sql string) (string, error) {
	c.mu.Lock()
	if n := len(c.history); n == 0 || c.history[n-1] != sql {
		c.history = append(c.history, sql)
	}
	c.index = -1
	c.prevLine = ""
	c.mu.Unlock()

	out, err := c.querier.Query(ctx, sql)
	if err != nil {
		c.log.Warn("query failed", zap.Error(err))
		return ServerError, err
	}
	return out, nil
}

// Up moves back through the history. current is the line being edited; it
// is restored when Down passes the newest entry. ok is false when there is
// nothing older to show.
func (c *Console) Up(current string) (line string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.index < 0:
		if len(c.history) == 0 {
			return current, false
		}
		c.prevLine = current
		c.index = len(c.history) - 1
	case c.index == 0:
		return c.history[0], false
	default:
		c.index--
	}
	return c.history[c.index], true
}

// Down moves forward through the history. ok is false when not browsing.
func (c *Console) Down() (line string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return "", false
	}
	if c.index == len(c.history)-1 {
		c.index = -1
		return c.prevLine, true
	}
	c.index++
	return c.history[c.index], true
}

// History returns the submitted statements, oldest first.
func (c *Console) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}
