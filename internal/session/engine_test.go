package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/internal/storage"
	"github.com/tandemcode/tandem/internal/tool"
	"github.com/tandemcode/tandem/pkg/types"
)

type testBundle struct {
	engine  *Engine
	store   *Store
	mock    *provider.Mock
	bus     *bus.Bus
	gate    *permission.Gate
	workDir string
}

func newTestEngine(t *testing.T, mock *provider.Mock) *testBundle {
	t.Helper()

	b := bus.New()
	t.Cleanup(func() { b.Close() })

	workDir := t.TempDir()
	st := storage.New(t.TempDir(), b)
	gate := permission.NewGate(b)
	files := filetime.NewTracker()
	store := NewStore(st, b, gate, files)

	registry := provider.NewRegistry(nil)
	registry.Register(mock)

	engine := NewEngine(Options{
		Store:     store,
		Providers: registry,
		Tools:     tool.Default(workDir, st),
		Gate:      gate,
		Files:     files,
		Bus:       b,
		Config:    nil,
		WorkDir:   workDir,
	})
	return &testBundle{engine: engine, store: store, mock: mock, bus: b, gate: gate, workDir: workDir}
}

// newSession creates a session with a non-default title so the async
// title task does not consume scripted mock turns.
func (tb *testBundle) newSession(t *testing.T) *types.Session {
	t.Helper()
	sess, err := tb.store.Create(context.Background(), tb.workDir)
	require.NoError(t, err)
	sess, err = tb.store.Update(context.Background(), sess.ID, func(s *types.Session) {
		s.Title = "Testing session engine"
	})
	require.NoError(t, err)
	return sess
}

func textParts(text string) []types.Part {
	return []types.Part{&types.TextPart{Text: text}}
}

func toolParts(msg *types.Message) []*types.ToolPart {
	var out []*types.ToolPart
	for _, p := range msg.Parts {
		if tp, ok := p.(*types.ToolPart); ok {
			out = append(out, tp)
		}
	}
	return out
}

func TestChatEcho(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{
		SessionID: sess.ID,
		Parts:     textParts("hi"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.RoleAssistant, asst.Role)
	assert.Equal(t, "HI", asst.TextContent())
	assert.Equal(t, types.FinishEndTurn, asst.Assistant.FinishReason)
	assert.True(t, asst.Completed())
	assert.Equal(t, "mock", asst.Assistant.ProviderID)
	assert.Equal(t, "echo", asst.Assistant.ModelID)
	assert.NotZero(t, asst.Assistant.Tokens.Input)

	msgs, err := tb.store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Equal(t, asst.ID, msgs[2].ID)
}

func TestChatEventOrder(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)

	events, unsub := tb.bus.Subscribe(bus.MessageCreated, bus.MessageCompleted, bus.SessionIdle)
	defer unsub()

	_, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("hi")})
	require.NoError(t, err)

	var seen []bus.EventType
	for e := range events {
		seen = append(seen, e.Type)
		if e.Type == bus.SessionIdle {
			break
		}
	}
	require.Len(t, seen, 4)
	assert.Equal(t, bus.MessageCreated, seen[0], "user message first")
	assert.Equal(t, bus.MessageCreated, seen[1], "assistant skeleton second")
	assert.Equal(t, bus.MessageCompleted, seen[2])
	assert.Equal(t, bus.SessionIdle, seen[3])
}

func TestChatBusy(t *testing.T) {
	mock := provider.NewScriptedMock([]provider.Delta{
		{Kind: provider.DeltaStart},
		{Kind: provider.DeltaStepStart},
		{Kind: provider.DeltaText, Text: "slow"},
		{Kind: provider.DeltaStepFinish, Reason: types.FinishEndTurn},
		{Kind: provider.DeltaFinish, Reason: types.FinishEndTurn},
	})
	mock.Delay = 50 * time.Millisecond
	tb := newTestEngine(t, mock)
	sess := tb.newSession(t)

	done := make(chan error, 1)
	go func() {
		_, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("hi")})
		done <- err
	}()

	require.Eventually(t, func() bool { return tb.engine.Busy(sess.ID) }, 2*time.Second, 5*time.Millisecond)

	_, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("again")})
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-done)
	assert.False(t, tb.engine.Busy(sess.ID))
}

func TestChatToolLoop(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)

	target := filepath.Join(tb.workDir, "x.txt")
	require.NoError(t, os.WriteFile(target, []byte("abc"), 0o644))

	tb.mock.Rescript(
		[]provider.Delta{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaToolCall, CallID: "call_1", ToolName: "read"},
			{Kind: provider.DeltaToolCallEnd, CallID: "call_1", ToolName: "read", Args: []byte(`{"filePath":"` + target + `"}`)},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishToolUse, Usage: &types.TokenUsage{Input: 10, Output: 5}},
			{Kind: provider.DeltaFinish, Reason: types.FinishToolUse},
		},
		[]provider.Delta{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaText, Text: "done"},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishEndTurn, Usage: &types.TokenUsage{Input: 20, Output: 2}},
			{Kind: provider.DeltaFinish, Reason: types.FinishEndTurn},
		},
	)

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("read x")})
	require.NoError(t, err)

	calls := toolParts(asst)
	require.Len(t, calls, 1)
	assert.Equal(t, types.ToolStateResult, calls[0].State)
	require.NotNil(t, calls[0].Result)
	assert.Contains(t, *calls[0].Result, "abc")
	assert.Equal(t, "done", asst.TextContent())
	assert.Equal(t, types.FinishEndTurn, asst.Assistant.FinishReason)
	assert.Equal(t, 30, asst.Assistant.Tokens.Input)

	// The second provider request must carry the tool result back.
	require.Len(t, tb.mock.Requests, 2)
	last := tb.mock.Requests[1].Messages[len(tb.mock.Requests[1].Messages)-1]
	assert.Contains(t, last.Content, "abc")

	msgs, err := tb.store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, asst.ID, msgs[len(msgs)-1].ID)
}

func TestChatCancelMidStream(t *testing.T) {
	script := []provider.Delta{{Kind: provider.DeltaStart}, {Kind: provider.DeltaStepStart}}
	for i := 0; i < 10; i++ {
		script = append(script, provider.Delta{Kind: provider.DeltaText, Text: "x"})
	}
	script = append(script,
		provider.Delta{Kind: provider.DeltaStepFinish, Reason: types.FinishEndTurn},
		provider.Delta{Kind: provider.DeltaFinish, Reason: types.FinishEndTurn},
	)
	mock := provider.NewScriptedMock(script)
	mock.Delay = 30 * time.Millisecond
	tb := newTestEngine(t, mock)
	sess := tb.newSession(t)

	type result struct {
		msg *types.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("go")})
		done <- result{msg, err}
	}()

	require.Eventually(t, func() bool { return tb.engine.Busy(sess.ID) }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.True(t, tb.engine.Abort(sess.ID))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, types.FinishCanceled, res.msg.Assistant.FinishReason)
	assert.True(t, res.msg.Completed())
	assert.Less(t, len(res.msg.TextContent()), 10, "partial output only")

	assert.False(t, tb.engine.Abort(sess.ID), "no active turn after finalize")
}

func writeCallScript(target string) [][]provider.Delta {
	return [][]provider.Delta{
		{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaToolCall, CallID: "call_w", ToolName: "write"},
			{Kind: provider.DeltaToolCallEnd, CallID: "call_w", ToolName: "write", Args: []byte(`{"filePath":"` + target + `","content":"hello"}`)},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishToolUse},
			{Kind: provider.DeltaFinish, Reason: types.FinishToolUse},
		},
		{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaText, Text: "done"},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishEndTurn},
			{Kind: provider.DeltaFinish, Reason: types.FinishEndTurn},
		},
	}
}

func TestChatPermissionDenied(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)
	target := filepath.Join(tb.workDir, "denied.txt")
	tb.mock.Rescript(writeCallScript(target)...)

	requests, unsub := tb.bus.Subscribe(bus.PermissionRequested)
	defer unsub()
	go func() {
		e := <-requests
		data := e.Data.(bus.PermissionRequestedData)
		tb.gate.Respond(data.ID, permission.ReplyReject)
	}()

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("write it")})
	require.NoError(t, err)

	calls := toolParts(asst)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Error)
	assert.Contains(t, *calls[0].Error, "permission denied")
	assert.NoFileExists(t, target)

	// The turn continues after a denial.
	assert.Equal(t, "done", asst.TextContent())
	assert.Equal(t, types.FinishEndTurn, asst.Assistant.FinishReason)
}

func TestChatPermissionGranted(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)
	target := filepath.Join(tb.workDir, "granted.txt")
	tb.mock.Rescript(writeCallScript(target)...)

	requests, unsub := tb.bus.Subscribe(bus.PermissionRequested)
	defer unsub()
	go func() {
		e := <-requests
		data := e.Data.(bus.PermissionRequestedData)
		tb.gate.Respond(data.ID, permission.ReplyOnce)
	}()

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("write it")})
	require.NoError(t, err)

	calls := toolParts(asst)
	require.Len(t, calls, 1)
	assert.Equal(t, types.ToolStateResult, calls[0].State)
	assert.Nil(t, calls[0].Error)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestChatSchemaErrorSurfaced(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess := tb.newSession(t)
	tb.mock.Rescript(
		[]provider.Delta{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaToolCall, CallID: "call_b", ToolName: "read"},
			{Kind: provider.DeltaToolCallEnd, CallID: "call_b", ToolName: "read", Args: []byte(`{}`)},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishToolUse},
			{Kind: provider.DeltaFinish, Reason: types.FinishToolUse},
		},
		[]provider.Delta{
			{Kind: provider.DeltaStart},
			{Kind: provider.DeltaStepStart},
			{Kind: provider.DeltaText, Text: "sorry"},
			{Kind: provider.DeltaStepFinish, Reason: types.FinishEndTurn},
			{Kind: provider.DeltaFinish, Reason: types.FinishEndTurn},
		},
	)

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("read nothing")})
	require.NoError(t, err)

	calls := toolParts(asst)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Error)
	assert.Contains(t, *calls[0].Error, "invalid arguments")
	assert.Equal(t, types.FinishEndTurn, asst.Assistant.FinishReason, "schema failures do not end the turn")
}

func TestChatProviderFatalError(t *testing.T) {
	mock := provider.NewMock()
	mock.FailFirst(1, errors.New("401 unauthorized"))
	tb := newTestEngine(t, mock)
	sess := tb.newSession(t)

	asst, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("hi")})
	require.NoError(t, err)
	assert.Equal(t, types.FinishError, asst.Assistant.FinishReason)
	require.NotNil(t, asst.Assistant.Error)
	assert.Contains(t, asst.Assistant.Error.Message, "401")
	assert.True(t, asst.Completed())
}

func TestChatGeneratesTitle(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	sess, err := tb.store.Create(context.Background(), tb.workDir)
	require.NoError(t, err)

	_, err = tb.engine.Chat(context.Background(), &ChatRequest{SessionID: sess.ID, Parts: textParts("fix the build")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := tb.store.Get(context.Background(), sess.ID)
		return err == nil && got.Title != defaultTitle
	}, 3*time.Second, 10*time.Millisecond)
}

func TestChatUnknownSession(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	_, err := tb.engine.Chat(context.Background(), &ChatRequest{SessionID: "ses_missing", Parts: textParts("hi")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlanModeRestrictsTools(t *testing.T) {
	tb := newTestEngine(t, provider.NewMock())
	md := tb.engine.resolveMode("plan")
	view := tb.engine.toolView(md)

	ids := view.IDs()
	assert.NotContains(t, ids, "write")
	assert.NotContains(t, ids, "edit")
	assert.NotContains(t, ids, "bash")
	assert.Contains(t, ids, "read")
	assert.Contains(t, ids, "grep")
}

func TestPersistDegradesThenFails(t *testing.T) {
	b := bus.New()
	defer b.Close()

	// Rooting storage under a regular file makes every write fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	store := NewStore(storage.New(filepath.Join(blocked, "data"), b), b, nil, nil)

	ts := &turnState{
		engine:  &Engine{store: store, bus: b},
		message: &types.Message{ID: "msg_x", SessionID: "ses_x"},
	}
	assert.NoError(t, ts.persist(), "first failure degrades but continues")
	assert.Error(t, ts.persist(), "second failure ends the turn")
}
