// Package provider defines the unified interface and shared types for the LLM
// backends the assistant can talk to. Each adapter (openai.go, anthropic.go,
// gemini.go) implements Provider, normalizing the vendor's response into a
// unified Event sequence.
package provider

import (
	"context"
	"encoding/json"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem marks synthetic status entries replayed from memory. Adapters
	// whose API has no mid-conversation system role render it as user text.
	RoleSystem Role = "system"
)

// Message is a single message in the conversation history.
type Message struct {
	Role Role
	Text string
}

func UserMessage(text string) Message      { return Message{Role: RoleUser, Text: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }
func SystemMessage(text string) Message    { return Message{Role: RoleSystem, Text: text} }

// ── Tool Schema ───────────────────────────────────────────────────────────────

// ToolSchema describes a tool sent to the LLM (JSON Schema format).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema properties
	Required    []string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM.
	EventTextDelta EventType = iota

	// EventToolCallDone: a complete tool call (emitted after internal JSON assembly).
	EventToolCallDone

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventToolCallDone
	ToolCall *ToolCallRequest

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// ToolCallRequest represents a tool call requested by the LLM.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's response into a unified Event sequence
// 3. Assembling streamed tool-call JSON fragments internally
// 4. Classifying vendor errors with classifyError before emitting EventError
type Provider interface {
	// Chat starts a conversation turn.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The channel is closed when ctx is done.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "openai", "anthropic", "gemini".
	Name() string

	// DefaultModel returns the model used when a request names none.
	DefaultModel() string
}
