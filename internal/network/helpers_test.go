package network

import (
	"testing"

	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/observability"
)

// SetupObservability ensures the global logger is initialized before a test
// exercises code that logs through observability.GetLogger(), and resets it
// afterward so tests remain isolated from each other.
func SetupObservability(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "scalpeldep-test"})
	t.Cleanup(observability.ResetForTest)
}
