package provider

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

func TestToEinoMessagesRolesAndText(t *testing.T) {
	sys := &types.Message{Role: types.RoleSystem}
	sys.AppendText("you are terse")
	user := &types.Message{Role: types.RoleUser}
	user.AppendText("hi ")
	user.AppendText("there")
	asst := &types.Message{Role: types.RoleAssistant}
	asst.AppendText("hello")

	out := ToEinoMessages([]*types.Message{sys, user, asst})
	require.Len(t, out, 3)
	assert.Equal(t, schema.System, out[0].Role)
	assert.Equal(t, "you are terse", out[0].Content)
	assert.Equal(t, schema.User, out[1].Role)
	assert.Equal(t, "hi there", out[1].Content)
	assert.Equal(t, schema.Assistant, out[2].Role)
}

func TestToEinoMessagesToolRoundTrip(t *testing.T) {
	asst := &types.Message{Role: types.RoleAssistant}
	asst.AppendText("let me check")
	call := asst.AddToolCall("call_1", "read", map[string]any{"filePath": "/tmp/a"})
	require.True(t, asst.AttachToolResult("call_1", "file contents"))
	_ = call

	out := ToEinoMessages([]*types.Message{asst})
	require.Len(t, out, 2)

	assert.Equal(t, schema.Assistant, out[0].Role)
	require.Len(t, out[0].ToolCalls, 1)
	assert.Equal(t, "call_1", out[0].ToolCalls[0].ID)
	assert.Equal(t, "read", out[0].ToolCalls[0].Function.Name)
	assert.Contains(t, out[0].ToolCalls[0].Function.Arguments, "filePath")

	assert.Equal(t, schema.Tool, out[1].Role)
	assert.Equal(t, "call_1", out[1].ToolCallID)
	assert.Equal(t, "file contents", out[1].Content)
}

func TestToEinoMessagesToolError(t *testing.T) {
	asst := &types.Message{Role: types.RoleAssistant}
	asst.AddToolCall("call_9", "bash", map[string]any{"command": "false"})
	require.True(t, asst.AttachToolError("call_9", "exit 1"))

	out := ToEinoMessages([]*types.Message{asst})
	require.Len(t, out, 2)
	assert.Equal(t, "Error: exit 1", out[1].Content)
}

func TestToEinoMessagesSkipsEmpty(t *testing.T) {
	empty := &types.Message{Role: types.RoleAssistant}
	user := &types.Message{Role: types.RoleUser}
	user.AppendText("x")

	out := ToEinoMessages([]*types.Message{empty, user})
	require.Len(t, out, 1)
	assert.Equal(t, schema.User, out[0].Role)
}
