package provider

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

func collect(t *testing.T, ch <-chan Delta) []Delta {
	t.Helper()
	var out []Delta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestMockEcho(t *testing.T) {
	m := NewMock()
	ch, err := m.Stream(context.Background(), &Request{
		Model: "echo",
		Messages: []*schema.Message{
			{Role: schema.System, Content: "be helpful"},
			{Role: schema.User, Content: "hello there"},
		},
	})
	require.NoError(t, err)

	deltas := collect(t, ch)
	require.NotEmpty(t, deltas)
	assert.Equal(t, DeltaStart, deltas[0].Kind)

	text := ""
	for _, d := range deltas {
		if d.Kind == DeltaText {
			text += d.Text
		}
	}
	assert.Equal(t, "HELLO THERE", text)

	last := deltas[len(deltas)-1]
	assert.Equal(t, DeltaFinish, last.Kind)
	assert.Equal(t, types.FinishEndTurn, last.Reason)
	assert.NotNil(t, last.Usage)
}

func TestMockScriptedTurns(t *testing.T) {
	m := NewScriptedMock(
		[]Delta{
			{Kind: DeltaStart},
			{Kind: DeltaToolCall, CallID: "call_1", ToolName: "read"},
			{Kind: DeltaToolCallEnd, CallID: "call_1", ToolName: "read", Args: []byte(`{"filePath":"/x"}`)},
			{Kind: DeltaFinish, Reason: types.FinishToolUse},
		},
		[]Delta{
			{Kind: DeltaStart},
			{Kind: DeltaText, Text: "done"},
			{Kind: DeltaFinish, Reason: types.FinishEndTurn},
		},
	)

	ch, err := m.Stream(context.Background(), &Request{Model: "echo"})
	require.NoError(t, err)
	first := collect(t, ch)
	assert.Equal(t, types.FinishToolUse, first[len(first)-1].Reason)

	ch, err = m.Stream(context.Background(), &Request{Model: "echo"})
	require.NoError(t, err)
	second := collect(t, ch)
	assert.Equal(t, types.FinishEndTurn, second[len(second)-1].Reason)

	assert.Len(t, m.Requests, 2)
}

func TestMockCancellationClosesStream(t *testing.T) {
	m := NewScriptedMock([]Delta{
		{Kind: DeltaStart},
		{Kind: DeltaText, Text: "a"},
		{Kind: DeltaText, Text: "b"},
		{Kind: DeltaFinish, Reason: types.FinishEndTurn},
	})
	m.Delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Stream(ctx, &Request{Model: "echo"})
	require.NoError(t, err)

	<-ch // start
	cancel()

	// The channel must close without delivering the full script.
	var rest []Delta
	for d := range ch {
		rest = append(rest, d)
	}
	for _, d := range rest {
		assert.NotEqual(t, DeltaFinish, d.Kind)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := []struct {
		in    string
		tools bool
		want  types.FinishReason
	}{
		{"stop", false, types.FinishEndTurn},
		{"end_turn", false, types.FinishEndTurn},
		{"stop", true, types.FinishToolUse},
		{"tool_calls", false, types.FinishToolUse},
		{"tool_use", false, types.FinishToolUse},
		{"length", false, types.FinishMaxTokens},
		{"max_tokens", false, types.FinishMaxTokens},
		{"", false, types.FinishEndTurn},
		{"", true, types.FinishToolUse},
		{"weird", false, types.FinishEndTurn},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, mapFinishReason(c.in, c.tools), "in=%q tools=%v", c.in, c.tools)
	}
}
