package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/id"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/internal/tool"
	"github.com/tandemcode/tandem/pkg/types"
)

// ErrBusy reports a chat request against a session that already has a
// turn in flight.
var ErrBusy = errors.New("session has a turn in progress")

const (
	// maxSteps bounds the provider round trips of a single turn.
	maxSteps = 1000

	// persistInterval throttles incremental message writes while text
	// deltas stream in.
	persistInterval = 100 * time.Millisecond

	// chatTemperature keeps chat turns deterministic.
	chatTemperature = 0.0
)

// ChatRequest is one user turn. Empty ProviderID/ModelID fall back to
// the mode's model override, then the configured default.
type ChatRequest struct {
	SessionID  string
	ProviderID string
	ModelID    string
	Parts      []types.Part
	Mode       string
}

// Options wires the engine's collaborators.
type Options struct {
	Store     *Store
	Providers *provider.Registry
	Tools     *tool.Registry
	Gate      *permission.Gate
	Files     *filetime.Tracker
	Bus       *bus.Bus
	Config    *types.Config
	WorkDir   string
}

// Engine drives chat turns. Per session at most one turn runs at a
// time; Abort cancels the active one.
type Engine struct {
	store     *Store
	providers *provider.Registry
	tools     *tool.Registry
	gate      *permission.Gate
	files     *filetime.Tracker
	bus       *bus.Bus
	config    *types.Config
	workDir   string

	mu     sync.Mutex
	active map[string]*turn
}

// turn is the cancellation handle of one in-flight chat turn.
type turn struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine from its collaborators.
func NewEngine(opts Options) *Engine {
	return &Engine{
		store:     opts.Store,
		providers: opts.Providers,
		tools:     opts.Tools,
		gate:      opts.Gate,
		files:     opts.Files,
		bus:       opts.Bus,
		config:    opts.Config,
		workDir:   opts.WorkDir,
		active:    make(map[string]*turn),
	}
}

// Chat runs one turn: append the user message, stream the assistant
// reply, dispatch tool calls, finalize. It returns the completed
// assistant message, including partial output after a cancel.
func (e *Engine) Chat(ctx context.Context, req *ChatRequest) (*types.Message, error) {
	sess, err := e.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	if _, busy := e.active[req.SessionID]; busy {
		e.mu.Unlock()
		cancel()
		return nil, ErrBusy
	}
	e.active[req.SessionID] = t
	e.mu.Unlock()

	defer func() {
		cancel()
		close(t.done)
		e.mu.Lock()
		delete(e.active, req.SessionID)
		e.mu.Unlock()
		e.bus.Publish(bus.Event{Type: bus.SessionIdle, Data: bus.SessionIdleData{SessionID: req.SessionID}})
	}()

	md := e.resolveMode(req.Mode)
	mdl, prov, err := e.resolveModel(req, md)
	if err != nil {
		return nil, err
	}

	if md.autoApprove {
		e.gate.SetAutoApprove(req.SessionID, true)
		defer e.gate.SetAutoApprove(req.SessionID, false)
	}

	history, err := e.store.Messages(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if len(history) == 0 {
		system := &types.Message{
			ID:        id.New(id.Message),
			SessionID: req.SessionID,
			Role:      types.RoleSystem,
			Time:      types.MessageTime{Created: now, Completed: &now},
		}
		system.AppendText(e.systemPrompt(sess, md))
		if err := e.store.SaveMessage(ctx, system); err != nil {
			return nil, err
		}
		history = append(history, system)
	}

	user := &types.Message{
		ID:        id.New(id.Message),
		SessionID: req.SessionID,
		Role:      types.RoleUser,
		Parts:     req.Parts,
		Time:      types.MessageTime{Created: now, Completed: &now},
	}
	if err := e.store.SaveMessage(ctx, user); err != nil {
		return nil, err
	}
	e.bus.Publish(bus.Event{Type: bus.MessageCreated, Data: bus.MessageCreatedData{Info: user}})
	history = append(history, user)

	if sess.Title == defaultTitle {
		go e.generateTitle(req.SessionID, user.TextContent())
	}

	asst := &types.Message{
		ID:        id.New(id.Message),
		SessionID: req.SessionID,
		Role:      types.RoleAssistant,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
		Assistant: &types.AssistantMeta{ProviderID: mdl.ProviderID, ModelID: mdl.ID},
	}
	if err := e.store.SaveMessage(ctx, asst); err != nil {
		return nil, err
	}
	e.bus.Publish(bus.Event{Type: bus.MessageCreated, Data: bus.MessageCreatedData{Info: asst}})

	st := &turnState{
		engine:      e,
		session:     sess,
		model:       mdl,
		provider:    prov,
		tools:       e.toolView(md),
		history:     history,
		message:     asst,
		abort:       t.done,
		mode:        md.name,
		temperature: md.temperature,
	}

	reason, turnErr := st.run(turnCtx)
	if turnCtx.Err() != nil {
		reason = types.FinishCanceled
		turnErr = nil
	}
	if turnErr != nil {
		reason = types.FinishError
		asst.Assistant.Error = provider.ErrorFinish(mdl.ProviderID, turnErr)
		e.bus.Publish(bus.Event{Type: bus.SessionError, Data: bus.ErrorData{
			SessionID: req.SessionID,
			Message:   turnErr.Error(),
		}})
	}

	asst.Finalize(reason, time.Now().UnixMilli())
	// The final write must survive the turn's cancellation.
	if err := e.store.SaveMessage(context.Background(), asst); err != nil {
		logging.Error().Err(err).Str("message", asst.ID).Msg("finalize persist failed")
	}
	e.bus.Publish(bus.Event{Type: bus.MessageCompleted, Data: bus.MessageCompletedData{Info: asst}})

	if _, err := e.store.Update(context.Background(), req.SessionID, func(*types.Session) {}); err != nil {
		logging.Warn().Err(err).Str("session", req.SessionID).Msg("session touch failed")
	}
	return asst, nil
}

// Abort cancels the session's active turn. It reports whether a turn
// was running.
func (e *Engine) Abort(sessionID string) bool {
	e.mu.Lock()
	t, ok := e.active[sessionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Busy reports whether the session has a turn in flight.
func (e *Engine) Busy(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[sessionID]
	return ok
}

// resolveModel picks the turn's model: explicit request, then the
// mode's override, then the configured default.
func (e *Engine) resolveModel(req *ChatRequest, md mode) (*types.Model, provider.Provider, error) {
	providerID, modelID := req.ProviderID, req.ModelID
	if providerID == "" && modelID == "" && md.model != "" {
		providerID, modelID = provider.ParseModelString(md.model)
	}

	var (
		mdl *types.Model
		err error
	)
	if providerID == "" && modelID == "" {
		mdl, err = e.providers.DefaultModel()
	} else {
		mdl, err = e.providers.GetModel(providerID, modelID)
	}
	if err != nil {
		return nil, nil, err
	}

	prov, err := e.providers.Get(mdl.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return mdl, prov, nil
}

// toolView restricts the registry to the tools enabled by config and
// the turn's mode. Mode settings win over config.
func (e *Engine) toolView(md mode) *tool.Registry {
	enabled := make(map[string]bool)
	if e.config != nil {
		for name, on := range e.config.Tools {
			enabled[name] = on
		}
	}
	for name, on := range md.tools {
		enabled[name] = on
	}
	if len(enabled) == 0 {
		return e.tools
	}
	return e.tools.View(enabled)
}

// turnState is the mutable state of one streaming turn.
type turnState struct {
	engine      *Engine
	session     *types.Session
	model       *types.Model
	provider    provider.Provider
	tools       *tool.Registry
	history     []*types.Message
	message     *types.Message
	abort       <-chan struct{}
	mode        string
	temperature float64

	version     int64
	lastPersist time.Time
	storageErrs int
}

// run loops provider steps until the model stops asking for tools, the
// step budget runs out, or the turn fails.
func (st *turnState) run(ctx context.Context) (types.FinishReason, error) {
	for step := 0; step < maxSteps; step++ {
		reason, err := st.step(ctx)
		if err != nil {
			return types.FinishError, err
		}
		if ctx.Err() != nil {
			return types.FinishCanceled, nil
		}
		if reason != types.FinishToolUse {
			return reason, nil
		}
	}
	logging.Warn().Str("session", st.session.ID).Int("steps", maxSteps).Msg("turn hit the step budget")
	return types.FinishEndTurn, nil
}

// step runs one provider round trip, mapping deltas onto the assistant
// message and dispatching tool calls as they complete.
func (st *turnState) step(ctx context.Context) (types.FinishReason, error) {
	ch, err := st.provider.Stream(ctx, &provider.Request{
		Model:       st.model.ID,
		Messages:    provider.ToEinoMessages(append(st.history, st.message)),
		Tools:       st.tools.Infos(),
		MaxTokens:   st.model.MaxOutputTokens,
		Temperature: st.temperature,
	})
	if err != nil {
		return "", err
	}

	reason := types.FinishEndTurn
	var failure error
	for d := range ch {
		var perr error
		switch d.Kind {
		case provider.DeltaStepStart:
			st.message.StartStep()
		case provider.DeltaText:
			st.message.AppendText(d.Text)
			perr = st.partUpdated(d.Text, false)
		case provider.DeltaReasoning:
			st.message.AppendReasoning(d.Text)
			perr = st.partUpdated(d.Text, false)
		case provider.DeltaToolCall:
			st.message.AddToolCall(d.CallID, d.ToolName, nil)
			perr = st.partUpdated("", true)
		case provider.DeltaToolCallDelta:
			// Arguments arrive whole at tool-call-end.
		case provider.DeltaToolCallEnd:
			perr = st.dispatch(ctx, d)
		case provider.DeltaToolResult:
			// The provider ran the tool itself; its result is
			// authoritative and recorded as if produced locally.
			if !st.message.AttachToolResult(d.CallID, d.Result) {
				st.message.AddToolCall(d.CallID, d.ToolName, nil)
				st.message.AttachToolResult(d.CallID, d.Result)
			}
			perr = st.partUpdated("", true)
		case provider.DeltaStepFinish:
			st.tally(d.Usage)
			st.message.FinishStep(string(d.Reason), d.Usage)
			perr = st.partUpdated("", true)
		case provider.DeltaFinish:
			reason = d.Reason
		case provider.DeltaError:
			failure = d.Err
		}
		if failure == nil {
			failure = perr
		}
		if failure != nil {
			break
		}
	}
	if failure != nil {
		return "", failure
	}
	return reason, nil
}

// dispatch validates and executes one completed tool call. Transient
// and user errors come back to the model as the call's result; only
// fatal errors and storage degradation end the turn.
func (st *turnState) dispatch(ctx context.Context, d provider.Delta) error {
	part := st.callPart(d.CallID, d.ToolName)

	args, err := st.tools.Validate(d.ToolName, d.Args)
	if err != nil {
		st.message.AttachToolError(part.ToolCallID, err.Error())
		return st.partUpdated("", true)
	}
	part.Args = args
	if err := st.partUpdated("", true); err != nil {
		return err
	}

	tc := &tool.Context{
		SessionID: st.session.ID,
		MessageID: st.message.ID,
		CallID:    part.ToolCallID,
		Mode:      st.mode,
		WorkDir:   st.workDir(),
		Abort:     st.abort,
		Files:     st.engine.files,
		Gate:      st.engine.gate,
		Bus:       st.engine.bus,
		OnMetadata: func(meta map[string]any) {
			st.message.ToolMetadata(part.ToolCallID, meta)
		},
	}

	result, invokeErr := st.tools.Invoke(ctx, d.ToolName, args, tc)
	if invokeErr != nil {
		if ctx.Err() != nil {
			// The cancel path finalizes the turn; the pending call
			// stays unresolved in the persisted message.
			return nil
		}
		if permission.IsDenied(invokeErr) {
			st.message.AttachToolError(part.ToolCallID, "permission denied: "+invokeErr.Error())
			return st.partUpdated("", true)
		}
		st.message.AttachToolError(part.ToolCallID, invokeErr.Error())
		if perr := st.partUpdated("", true); perr != nil {
			return perr
		}
		if tool.KindOf(invokeErr) == tool.KindFatal {
			return invokeErr
		}
		return nil
	}

	st.message.AttachToolResult(part.ToolCallID, result.Output)
	if result.Title != "" {
		st.message.ToolMetadata(part.ToolCallID, map[string]any{"title": result.Title})
	}
	st.message.ToolMetadata(part.ToolCallID, result.Metadata)
	return st.partUpdated("", true)
}

// callPart finds the pending call part for the ID, adopting a part
// created before the provider assigned the final call ID, or creating
// one if the stream never announced the call.
func (st *turnState) callPart(callID, toolName string) *types.ToolPart {
	var anonymous *types.ToolPart
	for _, p := range st.message.Parts {
		tp, ok := p.(*types.ToolPart)
		if !ok || tp.State != types.ToolStateCall {
			continue
		}
		if tp.ToolCallID == callID {
			return tp
		}
		if tp.ToolCallID == "" {
			anonymous = tp
		}
	}
	if anonymous != nil {
		anonymous.ToolCallID = callID
		anonymous.ToolName = toolName
		return anonymous
	}
	return st.message.AddToolCall(callID, toolName, nil)
}

// workDir is the effective directory for the turn's tools.
func (st *turnState) workDir() string {
	if st.session.Directory != "" {
		return st.session.Directory
	}
	return st.engine.workDir
}

// tally folds one step's usage into the turn totals.
func (st *turnState) tally(usage *types.TokenUsage) {
	if usage == nil {
		return
	}
	st.message.Assistant.Tokens.Add(*usage)
	st.message.Assistant.Cost = st.model.Cost(st.message.Assistant.Tokens)
}

// partUpdated publishes message.part.updated for the trailing part and
// persists the message, throttled while deltas stream.
func (st *turnState) partUpdated(delta string, force bool) error {
	st.version++
	var part types.Part
	if n := len(st.message.Parts); n > 0 {
		part = st.message.Parts[n-1]
	}
	st.engine.bus.Publish(bus.Event{Type: bus.MessagePartUpdated, Data: bus.MessagePartUpdatedData{
		SessionID: st.message.SessionID,
		MessageID: st.message.ID,
		Part:      part,
		Delta:     delta,
		Version:   st.version,
	}})

	if !force && time.Since(st.lastPersist) < persistInterval {
		return nil
	}
	return st.persist()
}

// persist writes the assistant message. The first failure degrades the
// turn to in-memory operation; the second ends it.
func (st *turnState) persist() error {
	st.lastPersist = time.Now()
	if err := st.engine.store.SaveMessage(context.Background(), st.message); err != nil {
		st.storageErrs++
		logging.Warn().
			Err(err).
			Str("message", st.message.ID).
			Int("failures", st.storageErrs).
			Msg("incremental persist failed")
		if st.storageErrs >= 2 {
			return err
		}
	}
	return nil
}
