package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexion-ai/vesselcheck/internal/config"
)

// initProviders are offered by the wizard, in display order.
var initProviders = []string{
	"openai", "anthropic", "gemini", "deepseek", "groq", "qwen", "kimi", "ollama",
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up vesselcheck: choose a provider, enter your API key, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			return runInit(os.Stdin, cmd.OutOrStdout(), path)
		},
	}
}

func runInit(in io.Reader, out io.Writer, configPath string) error {
	reader := bufio.NewReader(in)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	fmt.Fprintln(out, "Welcome to the vesselcheck configuration wizard!")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Available providers:")
	for i, p := range initProviders {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	selectedIdx := 0
	if n, err := strconv.Atoi(ask(fmt.Sprintf("\nSelect provider (1-%d) [1]: ", len(initProviders)))); err == nil && n >= 1 && n <= len(initProviders) {
		selectedIdx = n - 1
	}
	providerName := initProviders[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", providerName)

	apiKey := ask(fmt.Sprintf("Enter API key for %s: ", providerName))
	if apiKey == "" && providerName != "ollama" {
		return fmt.Errorf("API key cannot be empty")
	}

	model := ask(fmt.Sprintf("Model [%s]: ", config.KnownProviderModels[providerName]))

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "\nConfig file already exists at %s\n", configPath)
		if answer := ask("Update provider settings? [y/N]: "); strings.ToLower(answer) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := config.SaveProviderToFile(configPath, providerName, config.ProviderConfig{APIKey: apiKey, Model: model}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfig saved to %s\n", configPath)
	fmt.Fprintln(out, "Next: vesselcheck seed && vesselcheck serve")
	return nil
}
