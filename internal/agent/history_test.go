// File: internal/agent/history_test.go
package agent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestHistory_AppendPreservesOrder(t *testing.T) {
	h := NewHistory()
	inv := schemas.ToolInvocation{ID: "1", Name: "click_element", Args: map[string]any{"selector": "#go"}}

	h.Append(schemas.UserTurn("open example.com"))
	h.Append(schemas.ModelCallTurn(inv), schemas.ToolTurn(inv.Name, schemas.ResultEnvelope{Status: schemas.StatusSuccess, Message: "ok"}))

	turns := h.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, schemas.RoleUser, turns[0].Role)
	assert.True(t, turns[1].IsCall())
	assert.Equal(t, schemas.RoleTool, turns[2].Role)
	assert.Equal(t, "click_element", turns[2].ToolName)
}

func TestHistory_SnapshotsAreIsolated(t *testing.T) {
	h := NewHistory()
	args := map[string]any{"url": "https://example.com"}
	h.Append(schemas.ModelCallTurn(schemas.ToolInvocation{Name: "navigate_to_url", Args: args}))

	// Mutating the caller's map after Append must not leak in.
	args["url"] = "https://evil.example"

	snap := h.Turns()
	snap[0].Invocation.Args["url"] = "mutated"
	snap[0].Text = "mutated"

	again := h.Turns()
	assert.Equal(t, "https://example.com", again[0].Invocation.Args["url"])
	assert.Empty(t, again[0].Text)
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(schemas.UserTurn(fmt.Sprintf("task %d", i)))
			_ = h.Turns()
		}(i)
	}
	require.True(t, waitTimeout(&wg, 5*time.Second), "appends did not finish")
	assert.Equal(t, 20, h.Len())
}
