// Package mcp exposes the checklist and the chat turn to MCP clients
// (desktop assistants, IDE agents) as a stdio tool server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
)

// Tool names registered on the server.
const (
	ToolStatus     = "checklist_status"
	ToolUpdateItem = "checklist_update_item"
	ToolChat       = "checklist_chat"
)

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req agent.TurnRequest) agent.Response
}

// Server wraps an MCP server whose tools operate on a checklist store.
type Server struct {
	turns TurnHandler
	store checklist.Store
	log   zerolog.Logger
	srv   *mcp.Server
}

// NewServer registers the checklist tools. turns may be nil, in which case
// the chat tool is not offered.
func NewServer(turns TurnHandler, store checklist.Store, version string, log zerolog.Logger) *Server {
	s := &Server{
		turns: turns,
		store: store,
		log:   log.With().Str("component", "mcp").Logger(),
		srv: mcp.NewServer(&mcp.Implementation{
			Name:    "vesselcheck",
			Version: version,
		}, &mcp.ServerOptions{
			Instructions: "Vessel safety checklist. Read the status before marking items, and only mark items the user has verified.",
		}),
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        ToolStatus,
		Description: "Show every checklist category with its items, their IDs and completion state.",
	}, s.status)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        ToolUpdateItem,
		Description: "Set the completion state of one checklist item by ID, optionally recording notes and who checked it.",
	}, s.updateItem)
	if turns != nil {
		mcp.AddTool(s.srv, &mcp.Tool{
			Name:        ToolChat,
			Description: "Send a message to the checklist assistant. Verified items in the message are marked complete.",
		}, s.chat)
	}
	return s
}

// Run serves the tools on stdin/stdout until the client disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves the tools over t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	s.log.Info().Msg("mcp server started")
	err := s.srv.Run(ctx, t)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// Connect attaches a single session over t and returns immediately.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

type statusInput struct{}

type statusOutput struct {
	Status    string `json:"status" jsonschema:"the rendered checklist"`
	Completed int    `json:"completed" jsonschema:"number of completed items"`
	Total     int    `json:"total" jsonschema:"number of items"`
}

func (s *Server) status(ctx context.Context, _ *mcp.CallToolRequest, _ statusInput) (*mcp.CallToolResult, statusOutput, error) {
	forest, err := s.store.Forest(ctx)
	if err != nil {
		return nil, statusOutput{}, fmt.Errorf("load checklist: %w", err)
	}
	snap := checklist.BuildSnapshot(forest)
	done, total := checklist.Progress(forest)

	out := statusOutput{Status: snap.Status, Completed: done, Total: total}
	text := fmt.Sprintf("%s\n\nProgress: %d/%d items completed", snap.Status, done, total)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}

type updateItemInput struct {
	ID        int64   `json:"id" jsonschema:"the item ID shown in the checklist status"`
	Completed bool    `json:"is_completed" jsonschema:"true to mark the item complete, false to reopen it"`
	Notes     *string `json:"notes,omitempty" jsonschema:"free-form inspection notes"`
	CheckedBy *string `json:"checked_by,omitempty" jsonschema:"name of the person who checked the item"`
}

type itemOutput struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"is_completed"`
	Notes       string `json:"notes,omitempty"`
	CheckedBy   string `json:"checked_by,omitempty"`
	LastChecked string `json:"last_checked,omitempty"`
}

func (s *Server) updateItem(ctx context.Context, _ *mcp.CallToolRequest, in updateItemInput) (*mcp.CallToolResult, itemOutput, error) {
	if in.ID <= 0 {
		return nil, itemOutput{}, fmt.Errorf("id must be a positive item ID, got %d", in.ID)
	}
	it, err := s.store.UpdateItem(ctx, checklist.ItemUpdate{
		ID:        in.ID,
		Completed: in.Completed,
		Notes:     in.Notes,
		CheckedBy: in.CheckedBy,
	})
	if errors.Is(err, checklist.ErrItemNotFound) {
		return nil, itemOutput{}, fmt.Errorf("no checklist item with ID %d", in.ID)
	}
	if err != nil {
		return nil, itemOutput{}, fmt.Errorf("update item %d: %w", in.ID, err)
	}
	s.log.Info().Int64("item", it.ID).Bool("completed", it.Completed).Msg("item updated")

	out := itemOutput{
		ID:          it.ID,
		Description: it.Description,
		Completed:   it.Completed,
		Notes:       it.Notes,
		CheckedBy:   it.CheckedBy,
	}
	if it.LastChecked != nil {
		out.LastChecked = it.LastChecked.UTC().Format(time.RFC3339)
	}
	state := "open"
	if it.Completed {
		state = "completed"
	}
	text := fmt.Sprintf("%s (ID: %d) is now %s", it.Description, it.ID, state)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}

type chatInput struct {
	Content   string `json:"content" jsonschema:"the user's message"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation to continue; defaults to the shared session"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type chatOutput struct {
	SessionID string        `json:"session_id"`
	Success   bool          `json:"success"`
	Messages  []chatMessage `json:"messages"`
}

func (s *Server) chat(ctx context.Context, _ *mcp.CallToolRequest, in chatInput) (*mcp.CallToolResult, chatOutput, error) {
	resp := s.turns.HandleTurn(ctx, agent.TurnRequest{SessionID: in.SessionID, Content: in.Content})

	out := chatOutput{SessionID: resp.SessionID, Success: resp.Success, Messages: make([]chatMessage, 0, len(resp.Messages))}
	lines := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out.Messages = append(out.Messages, chatMessage(m))
		lines = append(lines, m.Content)
	}

	res := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(lines, "\n\n")}},
		IsError: !resp.Success,
	}
	return res, out, nil
}
