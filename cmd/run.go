package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/vesselcheck/internal/agent"
)

func newRunCmd() *cobra.Command {
	var (
		prompt    string
		sessionID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a single message non-interactively",
		Example: `  vesselcheck run -P "VHF radio check on channel 16 was loud and clear"
  vesselcheck run --prompt "what is left in Documentation?" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}

			a, err := newApp(cmd.Context(), chatLogFile())
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = chatSessionID
			}
			resp := a.orch.HandleTurn(cmd.Context(), agent.TurnRequest{SessionID: sessionID, Content: prompt})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			for _, m := range resp.Messages {
				fmt.Fprintln(out, m.Content)
			}
			if !resp.Success {
				return fmt.Errorf("turn failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the message to send")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default \"cli\")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
