package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/config"
	"github.com/apexion-ai/vesselcheck/internal/logging"
	"github.com/apexion-ai/vesselcheck/internal/provider"
	"github.com/apexion-ai/vesselcheck/internal/session"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	dbFlag       string
	logLevelFlag string

	// Package-level version info, set by Execute().
	appVersion string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version

	rootCmd := &cobra.Command{
		Use:   "vesselcheck",
		Short: "Conversational vessel compliance checklist assistant",
		Long: "vesselcheck helps crews work through vessel compliance checklists by chatting with an LLM " +
			"that verifies items and ticks them off.",
		// Running vesselcheck with no subcommand starts the local REPL.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), "")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/vesselcheck/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "checklist database path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides, and validates it.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" && !isLocalProvider(name, cfg.ResolveBaseURL()) {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: vesselcheck init",
			name, name,
		)
	}

	model := cfg.ResolveModel()
	baseURL := cfg.ResolveBaseURL()

	switch name {
	case config.ProviderAnthropic:
		return provider.NewAnthropicProvider(apiKey, baseURL, model), nil
	case config.ProviderGemini:
		p, err := provider.NewGeminiProvider(ctx, apiKey, baseURL, model)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		// All other providers use the OpenAI-compatible API
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// isLocalProvider reports whether the endpoint is a local server that needs no key.
func isLocalProvider(name, baseURL string) bool {
	return name == "ollama" || provider.IsLocalEndpoint(baseURL)
}

// openStore opens the checklist database, falling back to the default path.
func openStore(cfg *config.Config) (*checklist.SQLiteStore, error) {
	path := cfg.DBPath
	if path == "" {
		p, err := checklist.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("checklist db path: %w", err)
		}
		path = p
	}
	store, err := checklist.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open checklist store: %w", err)
	}
	return store, nil
}

// app is the wired object graph shared by serve, chat and run.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *checklist.SQLiteStore
	memory   *session.Memory
	provider provider.Provider
	orch     *agent.Orchestrator
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp loads config and builds logger, store, memory, provider and
// orchestrator. Callers must Close the returned app.
func newApp(ctx context.Context, logFile string) (*app, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	if logFile == "" {
		logFile = cfg.Log.File
	}

	log, closeLog, err := logging.New(cfg.Log.Level, logFile)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []func(){closeLog}}

	store, err := openStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	prov, err := buildProvider(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = prov

	var policy *agent.Policy
	if cfg.SystemPromptFile != "" {
		policy, err = agent.LoadPolicy(cfg.SystemPromptFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load system prompt: %w", err)
		}
	}

	a.memory = session.NewMemory(
		session.WithRetention(cfg.Memory.Retention),
		session.WithLogger(log),
	)
	a.orch = agent.NewOrchestrator(store, a.memory, prov, agent.Options{
		HistoryWindow: cfg.HistoryWindow,
		ModelTimeout:  cfg.ModelTimeout,
		MaxTokens:     cfg.MaxTokens,
		Policy:        policy,
		Logger:        log,
	})

	log.Debug().
		Str("provider", prov.Name()).
		Str("model", prov.DefaultModel()).
		Msg("app initialized")
	return a, nil
}
