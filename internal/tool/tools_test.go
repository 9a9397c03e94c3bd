package tool

import (
	"testing"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/permission"
)

// testContext builds a Context with an auto-approving gate so tool
// tests exercise execution, not the approval flow.
func testContext(t *testing.T) *Context {
	t.Helper()
	b := bus.New()
	t.Cleanup(func() { b.Close() })
	gate := permission.NewGate(b)
	gate.SetAutoApprove("ses_test", true)
	return &Context{
		SessionID: "ses_test",
		MessageID: "msg_test",
		CallID:    "call_test",
		Files:     filetime.NewTracker(),
		Gate:      gate,
		Bus:       b,
	}
}
