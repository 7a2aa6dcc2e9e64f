// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Mock Definitions --

// MockReasoner mocks schemas.ReasoningClient.
type MockReasoner struct {
	mock.Mock
}

func (m *MockReasoner) Decide(ctx context.Context, req schemas.ReasoningRequest) (schemas.Decision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.Decision), args.Error(1)
}

// MockAutomation mocks schemas.AutomationClient.
type MockAutomation struct {
	mock.Mock
}

func (m *MockAutomation) Screenshot(ctx context.Context) (schemas.Screenshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Screenshot), args.Error(1)
}

func (m *MockAutomation) Execute(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

// -- Test Helpers --

// eventRecorder collects emitted events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []schemas.Event
}

func (r *eventRecorder) sink(ev schemas.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []schemas.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Event(nil), r.events...)
}

var testShot = schemas.Screenshot{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}

// testConfig returns a valid configuration with the given iteration budget.
func testConfig(maxIterations int) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.AgentCfg.MaxIterations = maxIterations
	return cfg
}

func call(name string, args map[string]any) schemas.Decision {
	return schemas.Decision{Invocation: &schemas.ToolInvocation{ID: "call-" + name, Name: name, Args: args}}
}
