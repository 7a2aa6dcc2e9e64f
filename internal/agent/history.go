// internal/agent/history.go
package agent

import (
	"maps"
	"sync"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// History is the append-only conversation record of one session. Turns are
// never removed or rewritten.
type History struct {
	mu    sync.RWMutex
	turns []schemas.Turn
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds turns in order.
func (h *History) Append(turns ...schemas.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range turns {
		h.turns = append(h.turns, cloneTurn(t))
	}
}

// Turns returns a deep copy of the recorded turns in insertion order.
func (h *History) Turns() []schemas.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]schemas.Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = cloneTurn(t)
	}
	return out
}

// Len reports the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func cloneTurn(t schemas.Turn) schemas.Turn {
	if t.Invocation != nil {
		inv := *t.Invocation
		inv.Args = maps.Clone(inv.Args)
		t.Invocation = &inv
	}
	if t.Result != nil {
		r := *t.Result
		t.Result = &r
	}
	return t
}
