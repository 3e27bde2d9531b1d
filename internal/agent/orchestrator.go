// Package agent runs one chat turn end to end: it renders the checklist
// snapshot, assembles the prompt, calls the model, applies the resulting
// update_checklist_items call and records the exchange in session memory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/provider"
	"github.com/apexion-ai/vesselcheck/internal/session"
)

const (
	// ErrorMessage is the uniform reply of a degraded turn.
	ErrorMessage = "I apologize, but I encountered an error processing your request. Please try again."
	// NotSavedMessage is the reply when the checklist store rejected the turn's updates.
	NotSavedMessage = "I couldn't save those checklist updates. Please send your message again."

	DefaultModelTimeout = 30 * time.Second
)

// TurnState is a step of the per-request state machine.
type TurnState string

const (
	StateReceived        TurnState = "received"
	StateSnapshotBuilt   TurnState = "snapshot_built"
	StatePromptAssembled TurnState = "prompt_assembled"
	StateModelInvoked    TurnState = "model_invoked"
	StateApplied         TurnState = "applied"
	StateDegraded        TurnState = "degraded"
	StatePersisted       TurnState = "persisted"
	StateResponded       TurnState = "responded"
)

// TurnRequest is one inbound chat message.
type TurnRequest struct {
	SessionID string
	Content   string
}

// Message kinds of a Response.
const (
	MessageKindText   = "message"
	MessageKindStatus = "status_update"
)

// ResponseMessage is one entry of the reply shown to the crew.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Response is the result of a turn. Messages always holds the assistant
// entry, followed by a status entry when items changed.
type Response struct {
	Messages   []ResponseMessage    `json:"messages"`
	Categories []checklist.Category `json:"categories"`
	Success    bool                 `json:"success"`
	SessionID  string               `json:"session_id"`

	// State is the terminal state; Trace lists every state visited.
	State TurnState   `json:"-"`
	Trace []TurnState `json:"-"`
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	HistoryWindow int
	ModelTimeout  time.Duration
	MaxTokens     int
	Policy        *Policy
	Logger        zerolog.Logger
}

// Orchestrator sequences a turn through snapshot, prompt, model, applier
// and memory.
type Orchestrator struct {
	store    checklist.Store
	memory   *session.Memory
	provider provider.Provider
	applier  *Applier
	policy   *Policy

	historyWindow int
	modelTimeout  time.Duration
	maxTokens     int
	log           zerolog.Logger
}

func NewOrchestrator(store checklist.Store, memory *session.Memory, prov provider.Provider, opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = session.DefaultHistoryWindow
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	return &Orchestrator{
		store:         store,
		memory:        memory,
		provider:      prov,
		applier:       NewApplier(store, opts.Logger),
		policy:        opts.Policy,
		historyWindow: opts.HistoryWindow,
		modelTimeout:  opts.ModelTimeout,
		maxTokens:     opts.MaxTokens,
		log:           opts.Logger,
	}
}

// Memory exposes the session store the orchestrator writes to.
func (o *Orchestrator) Memory() *session.Memory { return o.memory }

// turn carries the mutable state of one HandleTurn call.
type turn struct {
	req       TurnRequest
	trace     []TurnState
	forest    []checklist.Category
	persisted bool
	log       zerolog.Logger
}

func (t *turn) enter(s TurnState) {
	t.trace = append(t.trace, s)
	t.log.Debug().Str("turn_state", string(s)).Msg("turn state")
}

// HandleTurn runs one request to completion. It never returns without a
// Response: model failures, store failures and panics all map to a
// success=false reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (resp Response) {
	if req.SessionID == "" {
		req.SessionID = session.DefaultSessionID
	}
	t := &turn{req: req, log: o.log.With().Str("session", req.SessionID).Logger()}
	started := time.Now()
	t.enter(StateReceived)

	defer func() {
		if r := recover(); r != nil {
			t.log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("turn panicked")
			resp = o.degrade(t, ErrorMessage)
		}
		t.log.Info().
			Str("turn_state", string(resp.State)).
			Bool("success", resp.Success).
			Dur("elapsed", time.Since(started)).
			Msg("turn finished")
	}()

	if n := o.memory.Sweep(); n > 0 {
		t.log.Debug().Int("sessions", n).Msg("expired sessions evicted")
	}

	forest, err := o.store.Forest(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("load checklist")
		return o.degrade(t, ErrorMessage)
	}
	t.forest = forest
	snap := checklist.BuildSnapshot(forest)
	o.memory.SetCurrentItems(req.SessionID, snap.Lookup)
	t.enter(StateSnapshotBuilt)

	history := o.memory.Recent(req.SessionID, o.historyWindow)
	prompt, err := AssemblePrompt(o.policy, snap, history, req.Content)
	if err != nil {
		t.log.Error().Err(err).Msg("assemble prompt")
		return o.degrade(t, ErrorMessage)
	}
	t.enter(StatePromptAssembled)

	reply, err := o.invoke(ctx, prompt)
	t.enter(StateModelInvoked)
	if err != nil {
		ev := t.log.Error().Err(err)
		var pe *provider.ProviderError
		switch {
		case errors.Is(err, provider.ErrTimeout):
			ev.Str("failure", "timeout")
		case errors.Is(err, provider.ErrMalformedResponse):
			ev.Str("failure", "malformed")
		case errors.As(err, &pe):
			ev.Str("failure", "provider").Int("status", pe.StatusCode).Bool("transient", pe.Transient)
		}
		ev.Msg("model call failed")
		return o.degrade(t, ErrorMessage)
	}

	var (
		text    string
		outcome Outcome
	)
	switch r := reply.(type) {
	case provider.PlainText:
		text = r.Text
	case provider.ToolCall:
		if r.Dropped > 0 {
			t.log.Warn().Int("dropped", r.Dropped).Msg("model returned several tool calls; only the first is applied")
		}
		if r.Name != provider.UpdateItemsToolName {
			t.log.Warn().Str("tool", r.Name).Msg("model called an unknown tool")
			text = FallbackMessage
			break
		}
		outcome, err = o.applier.Apply(ctx, r, snap)
		if errors.Is(err, ErrCommitFailed) {
			t.log.Error().Err(err).Msg("persist checklist updates")
			return o.degrade(t, NotSavedMessage)
		}
		if err != nil {
			t.log.Error().Err(err).Msg("apply checklist updates")
			return o.degrade(t, ErrorMessage)
		}
		text = outcome.Message
		if text == "" {
			text = r.Text
		}
		if text == "" {
			text = NoChangeMessage
		}
		if outcome.Forest != nil {
			t.forest = outcome.Forest
		}
	}
	t.enter(StateApplied)

	o.memory.Append(req.SessionID, session.RoleUser, req.Content)
	o.memory.Append(req.SessionID, session.RoleAssistant, text)
	messages := []ResponseMessage{{Role: string(session.RoleAssistant), Content: text, Type: MessageKindText}}
	if outcome.Changed() {
		status := outcome.Status()
		o.memory.AppendKind(req.SessionID, session.RoleStatus, status, session.KindStatusUpdate)
		messages = append(messages, ResponseMessage{Role: string(session.RoleStatus), Content: status, Type: MessageKindStatus})
	}
	t.persisted = true
	t.enter(StatePersisted)

	t.log.Info().
		Int("completed", len(outcome.Completed)).
		Int("uncompleted", len(outcome.Uncompleted)).
		Int("mutations", len(outcome.Mutations)).
		Msg("turn applied")

	return o.respond(t, messages, true)
}

func (o *Orchestrator) invoke(ctx context.Context, prompt Prompt) (provider.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	reply, usage, err := provider.Complete(ctx, o.provider, &provider.ChatRequest{
		Model:        o.provider.DefaultModel(),
		Messages:     prompt.Messages,
		Tools:        []provider.ToolSchema{provider.UpdateItemsTool()},
		SystemPrompt: prompt.System,
		MaxTokens:    o.maxTokens,
	})
	if usage != nil {
		o.log.Debug().
			Str("provider", o.provider.Name()).
			Int("input_tokens", usage.InputTokens).
			Int("output_tokens", usage.OutputTokens).
			Msg("model usage")
	}
	return reply, err
}

// degrade records the user message and the apology, then responds with
// success=false.
func (o *Orchestrator) degrade(t *turn, message string) Response {
	t.enter(StateDegraded)
	if !t.persisted {
		o.memory.Append(t.req.SessionID, session.RoleUser, t.req.Content)
		o.memory.Append(t.req.SessionID, session.RoleAssistant, message)
		t.persisted = true
		t.enter(StatePersisted)
	}
	return o.respond(t, []ResponseMessage{{Role: string(session.RoleAssistant), Content: message, Type: MessageKindText}}, false)
}

func (o *Orchestrator) respond(t *turn, messages []ResponseMessage, ok bool) Response {
	t.enter(StateResponded)
	cats := t.forest
	if cats == nil {
		cats = []checklist.Category{}
	}
	return Response{
		Messages:   messages,
		Categories: cats,
		Success:    ok,
		SessionID:  t.req.SessionID,
		State:      StateResponded,
		Trace:      t.trace,
	}
}
