package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/vesselcheck/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the checklist as MCP tools over stdio",
		Long: `Runs an MCP server on stdin/stdout so desktop assistants and IDE agents
can read and update the checklist or talk to the checklist assistant.
Logs go to stderr (or log.file) since stdout carries the protocol.`,
		Example: `  vesselcheck mcp --seed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			if seed {
				if _, err := seedStore(ctx, a.store, "", a.log); err != nil {
					return err
				}
			}
			go a.memory.RunSweeper(ctx, a.cfg.Memory.SweepInterval)

			return mcp.NewServer(a.orch, a.store, appVersion, a.log).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "load the built-in checklist when the database is empty")

	return cmd
}
