// File: internal/observability/tracing.go
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by the agent loop.
const TracerName = "github.com/xkilldash9x/webpilot/internal/agent"

// Tracer returns the agent tracer from the global provider. Without an
// installed SDK the provider is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
