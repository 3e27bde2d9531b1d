package agent

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/provider"
	"github.com/apexion-ai/vesselcheck/internal/session"
)

//go:embed prompts/*.md
var defaultPromptFS embed.FS

// promptSections defines the section names and their assembly order.
// Each name corresponds to a file "{name}.md" in the embedded prompts/ directory.
var promptSections = []string{
	"identity",
	"status",
	"verification",
	"rules",
	"tools",
}

// Policy is the system prompt template. It is rendered once per turn with the
// live checklist status.
type Policy struct {
	tmpl *template.Template
}

type policyData struct {
	Status   string
	ToolName string
}

// ParsePolicy compiles policy text. The text may reference {{.Status}} and
// {{.ToolName}}.
func ParsePolicy(text string) (*Policy, error) {
	tmpl, err := template.New("policy").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &Policy{tmpl: tmpl}, nil
}

// DefaultPolicy returns the built-in policy with any user section overrides
// applied.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(loadSystemPrompt(promptOverrideDirs()))
	if err != nil {
		// Override sections that do not parse are ignored.
		return mustEmbeddedPolicy()
	}
	return p
}

func mustEmbeddedPolicy() *Policy {
	p, err := ParsePolicy(loadSystemPrompt(nil))
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy returns the policy stored in path, or DefaultPolicy when path
// is empty. The file replaces the whole policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(string(data))
}

// Render fills in the checklist status. The status block is always present
// in the result, even if the template forgot to reference it.
func (p *Policy) Render(status string) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, policyData{Status: status, ToolName: provider.UpdateItemsToolName}); err != nil {
		return "", fmt.Errorf("render policy: %w", err)
	}
	out := buf.String()
	if !strings.Contains(out, status) {
		out = strings.TrimRight(out, "\n") + "\n\nCurrent checklist status:\n" + status
	}
	return out, nil
}

// Prompt is the exact input of one model call.
type Prompt struct {
	System   string
	Messages []provider.Message
}

// AssemblePrompt builds the system prompt from policy and the snapshot, then
// replays history (oldest first) and ends with the new user message.
func AssemblePrompt(policy *Policy, snap checklist.Snapshot, history []session.Turn, userMessage string) (Prompt, error) {
	system, err := policy.Render(snap.Status)
	if err != nil {
		return Prompt{}, err
	}

	msgs := make([]provider.Message, 0, len(history)+1)
	for _, t := range history {
		switch t.Role {
		case session.RoleUser:
			msgs = append(msgs, provider.UserMessage(t.Content))
		case session.RoleAssistant:
			msgs = append(msgs, provider.AssistantMessage(t.Content))
		case session.RoleStatus:
			msgs = append(msgs, provider.SystemMessage(t.Content))
		}
	}
	msgs = append(msgs, provider.UserMessage(userMessage))

	return Prompt{System: system, Messages: msgs}, nil
}

// loadSystemPrompt assembles the policy text from embedded defaults and user
// overrides. If a user file exists for a section, it replaces the embedded
// default for that section. A special "_extra.md" file in any override
// directory is appended after all sections.
func loadSystemPrompt(overrideDirs []string) string {
	var sections []string
	for _, name := range promptSections {
		if content := loadPromptSection(name, overrideDirs); content != "" {
			sections = append(sections, content)
		}
	}

	result := strings.Join(sections, "\n\n")

	for _, dir := range overrideDirs {
		extra := readFileString(filepath.Join(dir, "_extra.md"))
		if extra != "" {
			result += "\n\n" + extra
		}
	}

	return result
}

// loadPromptSection loads a single prompt section by name.
// Checks override directories in order (last wins), falls back to embedded default.
func loadPromptSection(name string, overrideDirs []string) string {
	filename := name + ".md"

	for i := len(overrideDirs) - 1; i >= 0; i-- {
		content := readFileString(filepath.Join(overrideDirs[i], filename))
		if content != "" {
			return content
		}
	}

	data, err := defaultPromptFS.ReadFile("prompts/" + filename)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// promptOverrideDirs returns the existing directories to check for prompt
// overrides, in priority order (lowest first).
func promptOverrideDirs() []string {
	var dirs []string
	add := func(dir string) {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".config", "vesselcheck", "prompts"))
	}
	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, ".vesselcheck", "prompts"))
	}
	return dirs
}

// readFileString reads a file and returns its trimmed content.
// Returns empty string if the file doesn't exist or is empty.
func readFileString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
