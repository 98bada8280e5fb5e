package orchestrator

import (
	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
)

// firstCall collects the first function call of a streamed pass. Fragments
// of any later call index are discarded and counted.
type firstCall struct {
	limit int

	started bool
	index   int
	id      string
	name    []byte
	args    []byte

	dropped map[int]struct{}
}

func newFirstCall(limit int) *firstCall {
	return &firstCall{limit: limit, dropped: make(map[int]struct{})}
}

// add folds one fragment. It fails once the first call outgrows the limit.
func (c *firstCall) add(ev llm.StreamEvent) error {
	if !c.started {
		c.started = true
		c.index = ev.Index
	}
	if ev.Index != c.index {
		c.dropped[ev.Index] = struct{}{}
		return nil
	}
	if ev.CallID != "" && c.id == "" {
		c.id = ev.CallID
	}
	c.name = append(c.name, ev.Name...)
	c.args = append(c.args, ev.Arguments...)
	if c.limit > 0 && len(c.name)+len(c.args) > c.limit {
		return apperr.Validation("function call exceeds %d bytes", c.limit)
	}
	return nil
}

func (c *firstCall) present() bool { return c.started && len(c.name) > 0 }

func (c *firstCall) droppedCount() int { return len(c.dropped) }
