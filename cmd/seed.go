package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/logging"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty checklist database",
		Long: "Loads the built-in vessel compliance checklist (or --file, a YAML file with the same layout) " +
			"into the database. A database that already holds categories is left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			log, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer closeLog()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := seedStore(cmd.Context(), store, file, log)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Checklist already populated; nothing to do.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d checklist items.\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file (default: built-in checklist)")

	return cmd
}

// seedStore loads file (or the built-in checklist when empty) into an empty store.
func seedStore(ctx context.Context, store *checklist.SQLiteStore, file string, log zerolog.Logger) (int, error) {
	var (
		cats []checklist.SeedCategory
		err  error
	)
	if file == "" {
		cats, err = checklist.DefaultSeed()
	} else {
		var data []byte
		data, err = os.ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("read seed file: %w", err)
		}
		cats, err = checklist.LoadSeed(data)
	}
	if err != nil {
		return 0, err
	}

	n, err := store.Seed(ctx, cats)
	if err != nil {
		return 0, fmt.Errorf("seed checklist: %w", err)
	}
	if n > 0 {
		log.Info().Int("items", n).Int("categories", len(cats)).Msg("checklist seeded")
	}
	return n, nil
}
