package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain catches goroutines leaked by the per-script extraction,
// source-map-attachment, and registry-classification fan-out in Run —
// each spawns one goroutine per item behind a counting semaphore, and a
// leak here usually means a wg.Done() isn't reached on some error path.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
