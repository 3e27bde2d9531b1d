// Package tui defines the IO interface between the chat REPL and the
// terminal, with a plain implementation and a styled one (glamour +
// lipgloss) for interactive terminals.
package tui

// WelcomeInfo is shown once when the REPL starts.
type WelcomeInfo struct {
	Version   string
	Provider  string
	Model     string
	SessionID string
	Progress  string
}

// IO is the contract between the REPL loop and the UI layer.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	Welcome(info WelcomeInfo)

	// ThinkingStart signals that a turn has been sent to the model.
	ThinkingStart()

	// Assistant displays the assistant's reply for the turn.
	Assistant(text string)

	// StatusUpdate displays the checklist delta produced by a turn.
	StatusUpdate(text string)

	// SystemMessage displays a local notice (e.g. "/clear" feedback).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)
}
