package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Reply is what a model turn resolved to: either PlainText or ToolCall.
type Reply interface {
	isReply()
}

// PlainText is a reply with no tool call.
type PlainText struct {
	Text string
}

// ToolCall is a reply that invoked a tool. Only the first call of a turn is
// kept; Dropped counts the ones after it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	// Text is any prose the model streamed alongside the call.
	Text    string
	Dropped int
}

func (PlainText) isReply() {}
func (ToolCall) isReply()  {}

// Complete runs one request against p and drains the event stream into a
// Reply. Errors are ErrTimeout, ErrMalformedResponse or *ProviderError.
func Complete(ctx context.Context, p Provider, req *ChatRequest) (Reply, *Usage, error) {
	ch, err := p.Chat(ctx, req)
	if err != nil {
		return nil, nil, classifyError(p.Name(), err)
	}

	var (
		text  strings.Builder
		call  *ToolCallRequest
		extra int
		usage *Usage
	)
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return nil, nil, classifyError(p.Name(), ctx.Err())
		case ev, ok := <-ch:
			if !ok {
				return finish(text.String(), call, extra, usage)
			}
			switch ev.Type {
			case EventTextDelta:
				text.WriteString(ev.TextDelta)
			case EventToolCallDone:
				if call == nil {
					call = ev.ToolCall
				} else {
					extra++
				}
			case EventDone:
				if ev.Usage != nil {
					usage = ev.Usage
				}
			case EventError:
				go drain(ch)
				return nil, nil, classifyError(p.Name(), ev.Error)
			}
		}
	}
}

func finish(text string, call *ToolCallRequest, extra int, usage *Usage) (Reply, *Usage, error) {
	if call != nil {
		if call.Name == "" {
			return nil, usage, fmt.Errorf("%w: tool call without a name", ErrMalformedResponse)
		}
		return ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Input,
			Text:      text,
			Dropped:   extra,
		}, usage, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, usage, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	return PlainText{Text: text}, usage, nil
}

func drain(ch <-chan Event) {
	for range ch {
	}
}
