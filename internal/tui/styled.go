package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("2")).
			Padding(0, 1)

	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

// StyledIO renders assistant replies as Markdown and checklist deltas in a
// bordered box. Input handling is shared with PlainIO.
type StyledIO struct {
	*PlainIO
	renderer *glamour.TermRenderer
}

// NewStyledIO creates a StyledIO on stdin/stdout wrapping Markdown at width.
func NewStyledIO(width int) *StyledIO {
	return newStyledIO(os.Stdin, os.Stdout, os.Stderr, width)
}

func newStyledIO(in io.Reader, out, errOut io.Writer, width int) *StyledIO {
	if width <= 0 {
		width = 80
	}
	// A nil renderer falls back to raw text.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	return &StyledIO{PlainIO: newPlainIO(in, out, errOut), renderer: r}
}

func (s *StyledIO) ReadInput() (string, error) {
	s.print("\n" + promptStyle.Render("❯") + " ")
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.scanner.Text()), nil
}

func (s *StyledIO) Welcome(info WelcomeInfo) {
	s.print(renderWelcome(info) + "\n")
}

func (s *StyledIO) ThinkingStart() {
	s.print(thinkingStyle.Render("✻ Checking...") + "\n")
}

func (s *StyledIO) Assistant(text string) {
	s.print(s.renderMarkdown(text) + "\n")
}

func (s *StyledIO) StatusUpdate(text string) {
	s.print(statusBoxStyle.Render(text) + "\n")
}

func (s *StyledIO) SystemMessage(text string) {
	s.print(systemStyle.Render(text) + "\n")
}

func (s *StyledIO) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.errOut, errorStyle.Render("error: "+msg))
}

func (s *StyledIO) renderMarkdown(text string) string {
	if s.renderer == nil {
		return text
	}
	out, err := s.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func renderWelcome(info WelcomeInfo) string {
	lines := []string{
		welcomeLabelStyle.Render("Provider: ") + welcomeValueStyle.Render(info.Provider),
		welcomeLabelStyle.Render("Model:    ") + welcomeValueStyle.Render(info.Model),
		welcomeLabelStyle.Render("Session:  ") + welcomeValueStyle.Render(info.SessionID),
	}
	if info.Progress != "" {
		lines = append(lines, welcomeLabelStyle.Render("Progress: ")+welcomeValueStyle.Render(info.Progress))
	}
	lines = append(lines, "", welcomeHintStyle.Render("/status checklist  /clear forget chat  /quit exit"))

	title := welcomeTitleStyle.Render("vesselcheck " + versionOrDev(info.Version))
	return title + "\n" + welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}
