package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/config"
	"github.com/apexion-ai/vesselcheck/internal/session"
	"github.com/apexion-ai/vesselcheck/internal/tui"
)

// scriptIO feeds fixed input lines and records what the loop rendered.
type scriptIO struct {
	lines  []string
	events []string
}

func (s *scriptIO) ReadInput() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptIO) Welcome(tui.WelcomeInfo)   {}
func (s *scriptIO) ThinkingStart()            { s.events = append(s.events, "thinking") }
func (s *scriptIO) Assistant(text string)     { s.events = append(s.events, "assistant:"+text) }
func (s *scriptIO) StatusUpdate(text string)  { s.events = append(s.events, "status:"+text) }
func (s *scriptIO) SystemMessage(text string) { s.events = append(s.events, "system:"+text) }
func (s *scriptIO) Error(msg string)          { s.events = append(s.events, "error:"+msg) }

type fakeTurns struct {
	reqs []agent.TurnRequest
	resp agent.Response
}

func (f *fakeTurns) HandleTurn(_ context.Context, req agent.TurnRequest) agent.Response {
	f.reqs = append(f.reqs, req)
	return f.resp
}

func seededStore(t *testing.T) *checklist.SQLiteStore {
	t.Helper()
	store, err := checklist.NewSQLiteStore(filepath.Join(t.TempDir(), "checklist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	n, err := seedStore(context.Background(), store, "", zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 30, n)
	return store
}

func TestChatLoop_TurnsAndStatus(t *testing.T) {
	ui := &scriptIO{lines: []string{"", "radio ok", "/quit", "never read"}}
	turns := &fakeTurns{resp: agent.Response{
		Success: true,
		Messages: []agent.ResponseMessage{
			{Role: "assistant", Content: "Verified.", Type: agent.MessageKindText},
			{Role: "status", Content: "Progress: 1/30 items completed", Type: agent.MessageKindStatus},
		},
	}}
	loop := &chatLoop{ui: ui, turns: turns, memory: session.NewMemory(), store: seededStore(t), sessionID: "cli"}

	require.NoError(t, loop.run(context.Background()))

	assert.Equal(t, []agent.TurnRequest{{SessionID: "cli", Content: "radio ok"}}, turns.reqs)
	assert.Equal(t, []string{"thinking", "assistant:Verified.", "status:Progress: 1/30 items completed"}, ui.events)
	assert.Equal(t, []string{"never read"}, ui.lines)
}

func TestChatLoop_DegradedReplyRendersAsError(t *testing.T) {
	ui := &scriptIO{lines: []string{"hello"}}
	turns := &fakeTurns{resp: agent.Response{
		Messages: []agent.ResponseMessage{{Role: "assistant", Content: agent.ErrorMessage, Type: agent.MessageKindText}},
	}}
	loop := &chatLoop{ui: ui, turns: turns, memory: session.NewMemory(), store: seededStore(t), sessionID: "cli"}

	require.NoError(t, loop.run(context.Background()))
	assert.Equal(t, []string{"thinking", "error:" + agent.ErrorMessage}, ui.events)
}

func TestChatLoop_Commands(t *testing.T) {
	mem := session.NewMemory()
	mem.Append("cli", session.RoleUser, "earlier")
	ui := &scriptIO{lines: []string{"/status", "/clear", "/help", "/bogus"}}
	loop := &chatLoop{ui: ui, turns: &fakeTurns{}, memory: mem, store: seededStore(t), sessionID: "cli"}

	require.NoError(t, loop.run(context.Background()))

	require.Len(t, ui.events, 5)
	assert.Contains(t, ui.events[0], "☐ VHF radio test")
	assert.Equal(t, "system:Progress: 0/30 items completed", ui.events[1])
	assert.Equal(t, "system:Conversation cleared.", ui.events[2])
	assert.True(t, strings.HasPrefix(ui.events[3], "system:/status"))
	assert.Equal(t, "error:unknown command /bogus (try /help)", ui.events[4])
	assert.Empty(t, mem.Turns("cli"))
}

func TestChatLoop_StopsOnCancel(t *testing.T) {
	ui := &scriptIO{lines: []string{"radio ok"}}
	turns := &fakeTurns{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := &chatLoop{ui: ui, turns: turns, memory: session.NewMemory(), sessionID: "cli"}
	require.NoError(t, loop.run(ctx))
	assert.Empty(t, turns.reqs)
}

// blockingIO never returns a line until release is closed.
type blockingIO struct {
	scriptIO
	release chan struct{}
}

func (b *blockingIO) ReadInput() (string, error) {
	<-b.release
	return "", io.EOF
}

func TestChatLoop_CancelWhileWaitingForInput(t *testing.T) {
	ui := &blockingIO{release: make(chan struct{})}
	defer close(ui.release)
	ctx, cancel := context.WithCancel(context.Background())

	loop := &chatLoop{ui: ui, turns: &fakeTurns{}, memory: session.NewMemory(), sessionID: "cli"}
	done := make(chan error, 1)
	go func() { done <- loop.run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat loop did not stop while waiting for input")
	}
}

func TestSeedStore_FileAndIdempotence(t *testing.T) {
	store, err := checklist.NewSQLiteStore(filepath.Join(t.TempDir(), "checklist.db"))
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: Catamaran
  sections:
    - name: Safety Equipment
      items:
        - Life jackets for all crew
        - Flares in date
`), 0o644))

	n, err := seedStore(context.Background(), store, path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = seedStore(context.Background(), store, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, n, "populated store is left untouched")

	_, err = seedStore(context.Background(), store, filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	assert.Error(t, err)
}

func TestBuildProvider(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cfg      *config.Config
		wantName string
		wantErr  string
	}{
		{"openai", withProvider("openai", "sk-test", ""), "openai", ""},
		{"deepseek via defaults", withProvider("deepseek", "sk-test", ""), "deepseek", ""},
		{"anthropic", withProvider(config.ProviderAnthropic, "sk-ant", ""), "anthropic", ""},
		{"gemini", withProvider(config.ProviderGemini, "gm-key", ""), "gemini", ""},
		{"local needs no key", withProvider("ollama", "", ""), "local", ""},
		{"missing key", withProvider("openai", "", ""), "", "API key not configured"},
		{"unknown provider", withProvider("acme", "k", ""), "", "unknown provider"},
		{"custom base url", withProvider("acme", "k", "https://llm.acme.example/v1"), "openai", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildProvider(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.NotEmpty(t, p.DefaultModel())
		})
	}
}

func withProvider(name, key, baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider = name
	cfg.Providers[name] = &config.ProviderConfig{APIKey: key, BaseURL: baseURL}
	return cfg
}

func TestRunInit_WritesProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vesselcheck", "config.yaml")
	var out bytes.Buffer

	err := runInit(strings.NewReader("2\nsk-ant-test\n\n"), &out, path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Selected: anthropic")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, "anthropic", raw["provider"])
	assert.Equal(t, map[string]any{"api_key": "sk-ant-test"}, raw["providers"].(map[string]any)["anthropic"])
}

func TestRunInit_ExistingConfigDeclined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\n"), 0o600))

	var out bytes.Buffer
	err := runInit(strings.NewReader("1\nsk-test\n\nn\n"), &out, path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "provider: openai\n", string(data))
}

func TestRunInit_EmptyKey(t *testing.T) {
	err := runInit(strings.NewReader("1\n\n"), io.Discard, filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)
}

func TestDisplayVersion(t *testing.T) {
	assert.Equal(t, "v0.1.0", displayVersion("0.1.0", "none"))
	assert.Equal(t, "v0.1.0 (abc1234)", displayVersion("0.1.0", "abc1234"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	c := newVersionCmd("0.1.0", "abc1234", "2026-10-01")
	c.SetOut(&out)
	c.SetArgs([]string{})
	require.NoError(t, c.Execute())
	assert.Contains(t, out.String(), "vesselcheck v0.1.0 (abc1234)")
	assert.Contains(t, out.String(), "built:  2026-10-01")
}
