package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"
)

// scripted replays a fixed list of events.
type scripted struct {
	events []Event
	err    error
	block  bool // wait for ctx instead of closing
}

func (s *scripted) Name() string         { return "scripted" }
func (s *scripted) DefaultModel() string { return "scripted-1" }

func (s *scripted) Chat(ctx context.Context, _ *ChatRequest) (<-chan Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if s.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func toolEvent(name, args string) Event {
	return Event{Type: EventToolCallDone, ToolCall: &ToolCallRequest{ID: "call_1", Name: name, Input: json.RawMessage(args)}}
}

func TestComplete_PlainText(t *testing.T) {
	p := &scripted{events: []Event{
		{Type: EventTextDelta, TextDelta: "Hello "},
		{Type: EventTextDelta, TextDelta: "crew"},
		{Type: EventDone, Usage: &Usage{InputTokens: 10, OutputTokens: 2}},
	}}
	reply, usage, err := Complete(context.Background(), p, &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, PlainText{Text: "Hello crew"}, reply)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.InputTokens)
}

func TestComplete_FirstToolCallWins(t *testing.T) {
	p := &scripted{events: []Event{
		toolEvent(UpdateItemsToolName, `{"completed_items":[7]}`),
		toolEvent(UpdateItemsToolName, `{"completed_items":[8]}`),
		{Type: EventDone},
	}}
	reply, _, err := Complete(context.Background(), p, &ChatRequest{})
	require.NoError(t, err)

	call, ok := reply.(ToolCall)
	require.True(t, ok)
	assert.Equal(t, UpdateItemsToolName, call.Name)
	assert.JSONEq(t, `{"completed_items":[7]}`, string(call.Arguments))
	assert.Equal(t, 1, call.Dropped)
}

func TestComplete_EmptyReplyIsMalformed(t *testing.T) {
	p := &scripted{events: []Event{{Type: EventTextDelta, TextDelta: "  "}, {Type: EventDone}}}
	_, _, err := Complete(context.Background(), p, &ChatRequest{})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	p = &scripted{events: []Event{toolEvent("", `{}`)}}
	_, _, err = Complete(context.Background(), p, &ChatRequest{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestComplete_ProviderError(t *testing.T) {
	p := &scripted{events: []Event{{Type: EventError, Error: errors.New("503 service unavailable")}}}
	_, _, err := Complete(context.Background(), p, &ChatRequest{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "scripted", pe.Provider)
	assert.True(t, pe.Transient)

	p = &scripted{err: errors.New("dial tcp: connection refused")}
	_, _, err = Complete(context.Background(), p, &ChatRequest{})
	require.ErrorAs(t, err, &pe)
}

func TestComplete_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &scripted{events: []Event{{Type: EventTextDelta, TextDelta: "thinking"}}, block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := Complete(ctx, p, &ChatRequest{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limit 429", errors.New("status 429 too many requests"), true},
		{"rate_limit", errors.New("rate_limit_exceeded"), true},
		{"overloaded 529", errors.New("529 overloaded"), true},
		{"server 500", errors.New("internal server error 500"), true},
		{"bad gateway 502", errors.New("502 bad gateway"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"auth error", errors.New("401 unauthorized"), false},
		{"not found", errors.New("404 not found"), false},
		{"random error", errors.New("something went wrong"), false},
		{"gemini quota", genai.APIError{Code: 429, Message: "quota"}, true},
		{"gemini bad request", genai.APIError{Code: 400, Message: "bad schema"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *ProviderError
			require.ErrorAs(t, classifyError("openai", tt.err), &pe)
			assert.Equal(t, tt.transient, pe.Transient)
		})
	}
}

func TestClassifyError_Sentinels(t *testing.T) {
	assert.NoError(t, classifyError("x", nil))
	assert.ErrorIs(t, classifyError("x", context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classifyError("x", fmt.Errorf("wrapped: %w", context.DeadlineExceeded)), ErrTimeout)
	assert.ErrorIs(t, classifyError("x", context.Canceled), context.Canceled)

	err := classifyError("gemini", genai.APIError{Code: 403, Message: "denied"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 403, pe.StatusCode)
	assert.Equal(t, "gemini: status 403: denied", pe.Error())
}

// --- OpenAI adapter against a fake SSE endpoint ---

func sseServer(t *testing.T, status int, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_ToolCallStream(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"update_checklist_items","arguments":"{\"completed_"}}]},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"items\":[7],\"message\":\"Done\"}"}}]},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	p := NewOpenAIProvider("test-key", srv.URL, "test-model")

	reply, _, err := Complete(context.Background(), p, &ChatRequest{
		Messages: []Message{UserMessage("VHF radio tested")},
		Tools:    []ToolSchema{UpdateItemsTool()},
	})
	require.NoError(t, err)

	call, ok := reply.(ToolCall)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, "call_9", call.ID)
	assert.JSONEq(t, `{"completed_items":[7],"message":"Done"}`, string(call.Arguments))
}

func TestOpenAIProvider_TextStream(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"All "},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"clear."},"finish_reason":"stop"}]}`,
	)
	p := NewOpenAIProvider("test-key", srv.URL, "test-model")

	reply, _, err := Complete(context.Background(), p, &ChatRequest{Messages: []Message{UserMessage("status?")}})
	require.NoError(t, err)
	assert.Equal(t, PlainText{Text: "All clear."}, reply)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := sseServer(t, http.StatusInternalServerError)
	p := NewOpenAIProvider("test-key", srv.URL, "test-model")

	_, _, err := Complete(context.Background(), p, &ChatRequest{Messages: []Message{UserMessage("hi")}})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.True(t, pe.Transient)
}

func TestOpenAIProvider_NameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", "gemini"},
		{"https://api.moonshot.cn/v1", "kimi"},
		{"https://dashscope.aliyuncs.com/v1", "qwen"},
		{"http://localhost:11434/v1", "local"},
		{"https://custom.api.com/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("test-key", tt.baseURL, "test-model")
		assert.Equal(t, tt.expected, p.Name(), "baseURL=%q", tt.baseURL)
	}
}

func TestOpenAIProvider_BuildMessages(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o"}
	msgs := p.buildMessages(&ChatRequest{
		SystemPrompt: "policy",
		Messages: []Message{
			UserMessage("done with VHF"),
			AssistantMessage("Marked it."),
			SystemMessage("Progress: 1/30 items completed"),
			UserMessage("next"),
		},
	})
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfSystem)
	assert.NotNil(t, msgs[4].OfUser)
}

func TestExtractReasoningContent(t *testing.T) {
	assert.Equal(t, "hmm", extractReasoningContent(`{"reasoning_content":"hmm"}`))
	assert.Empty(t, extractReasoningContent(`{"content":"x"}`))
	assert.Empty(t, extractReasoningContent(`not json`))
}

// --- Anthropic / Gemini conversions ---

func TestBuildAnthropicMessages(t *testing.T) {
	msgs := buildAnthropicMessages([]Message{
		AssistantMessage("orphaned reply"),
		UserMessage("done with VHF"),
		SystemMessage("Progress: 1/30 items completed"),
		AssistantMessage("Marked it."),
	})
	require.Len(t, msgs, 3)
	assert.EqualValues(t, "user", msgs[0].Role)
	assert.EqualValues(t, "user", msgs[1].Role)
	require.NotNil(t, msgs[1].Content[0].OfText)
	assert.True(t, strings.HasPrefix(msgs[1].Content[0].OfText.Text, statusPrefix))
	assert.EqualValues(t, "assistant", msgs[2].Role)
}

func TestBuildAnthropicTools(t *testing.T) {
	tools := buildAnthropicTools([]ToolSchema{UpdateItemsTool()})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, UpdateItemsToolName, tools[0].OfTool.Name)
	assert.Equal(t, []string{"message"}, tools[0].OfTool.InputSchema.Required)
}

func TestGeminiEvents(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "internal musing", Thought: true},
				{Text: "Updating now."},
				{FunctionCall: &genai.FunctionCall{Name: UpdateItemsToolName, Args: map[string]any{"completed_items": []any{7}}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 3},
	}
	events := geminiEvents(resp)
	require.Len(t, events, 3)
	assert.Equal(t, EventTextDelta, events[0].Type)
	assert.Equal(t, "Updating now.", events[0].TextDelta)
	assert.Equal(t, EventToolCallDone, events[1].Type)
	assert.Equal(t, "call_2", events[1].ToolCall.ID)
	assert.JSONEq(t, `{"completed_items":[7]}`, string(events[1].ToolCall.Input))
	assert.Equal(t, EventDone, events[2].Type)
	assert.Equal(t, 12, events[2].Usage.InputTokens)
}

func TestBuildGeminiContents(t *testing.T) {
	contents := buildGeminiContents([]Message{
		UserMessage("hi"),
		AssistantMessage("hello"),
		SystemMessage("Progress: 0/30 items completed"),
	})
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, genai.RoleUser, contents[2].Role)
	assert.True(t, strings.HasPrefix(contents[2].Parts[0].Text, statusPrefix))
}

func TestBuildGeminiTools(t *testing.T) {
	assert.Nil(t, buildGeminiTools(nil))
	tools := buildGeminiTools([]ToolSchema{UpdateItemsTool()})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	schema, ok := tools[0].FunctionDeclarations[0].ParametersJsonSchema.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])
}
