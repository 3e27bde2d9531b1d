package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/server"
	"github.com/apexion-ai/vesselcheck/internal/session"
	"github.com/apexion-ai/vesselcheck/internal/tui"
)

// chatSessionID is the session used by the local REPL unless --session is given.
const chatSessionID = "cli"

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the checklist assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), sessionID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default \"cli\")")

	return cmd
}

// runChat starts the interactive chat (REPL) mode.
func runChat(ctx context.Context, sessionID string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Console logs would interleave with the conversation.
	a, err := newApp(ctx, chatLogFile())
	if err != nil {
		return err
	}
	defer a.Close()

	if sessionID == "" {
		sessionID = chatSessionID
	}

	loop := &chatLoop{
		ui:        newTerminalIO(),
		turns:     a.orch,
		memory:    a.memory,
		store:     a.store,
		sessionID: sessionID,
	}

	welcome := tui.WelcomeInfo{
		Version:   appVersion,
		Provider:  a.provider.Name(),
		Model:     a.provider.DefaultModel(),
		SessionID: sessionID,
	}
	if forest, err := a.store.Forest(ctx); err == nil {
		welcome.Progress = progressLine(forest)
	}
	loop.ui.Welcome(welcome)

	return loop.run(ctx)
}

// chatLogFile keeps REPL logs next to the default database unless log.file is set.
func chatLogFile() string {
	p, err := checklist.DefaultDBPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "chat.log")
}

// newTerminalIO picks the styled UI on an interactive terminal.
func newTerminalIO() tui.IO {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return tui.NewPlainIO()
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		width = 80
	}
	return tui.NewStyledIO(width)
}

// chatLoop reads lines, runs them as turns and renders the replies.
type chatLoop struct {
	ui        tui.IO
	turns     server.TurnHandler
	memory    *session.Memory
	store     checklist.Store
	sessionID string
}

func (l *chatLoop) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := l.readInput(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := l.command(ctx, line); quit {
				return nil
			}
			continue
		}

		l.ui.ThinkingStart()
		resp := l.turns.HandleTurn(ctx, agent.TurnRequest{SessionID: l.sessionID, Content: line})
		l.render(resp)
	}
}

type inputResult struct {
	line string
	err  error
}

// readInput returns when a line arrives or ctx is cancelled, so Ctrl+C
// works while the prompt is waiting. A cancelled read leaves its goroutine
// blocked on stdin until the process exits.
func (l *chatLoop) readInput(ctx context.Context) (string, error) {
	ch := make(chan inputResult, 1)
	go func() {
		line, err := l.ui.ReadInput()
		ch <- inputResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

func (l *chatLoop) render(resp agent.Response) {
	for _, m := range resp.Messages {
		switch {
		case m.Type == agent.MessageKindStatus:
			l.ui.StatusUpdate(m.Content)
		case !resp.Success:
			l.ui.Error(m.Content)
		default:
			l.ui.Assistant(m.Content)
		}
	}
}

// command handles a slash command and reports whether the REPL should exit.
func (l *chatLoop) command(ctx context.Context, line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/clear":
		l.memory.Clear(l.sessionID)
		l.ui.SystemMessage("Conversation cleared.")
	case "/status":
		forest, err := l.store.Forest(ctx)
		if err != nil {
			l.ui.Error("load checklist: " + err.Error())
			return false
		}
		l.ui.Assistant(checklist.BuildSnapshot(forest).Status)
		l.ui.SystemMessage(progressLine(forest))
	case "/help":
		l.ui.SystemMessage("/status  show the checklist\n/clear   forget this conversation\n/quit    exit")
	default:
		l.ui.Error("unknown command " + line + " (try /help)")
	}
	return false
}

func progressLine(forest []checklist.Category) string {
	done, total := checklist.Progress(forest)
	return fmt.Sprintf("Progress: %d/%d items completed", done, total)
}
