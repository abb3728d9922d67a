package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatstream/internal/config"
	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/core/providers"
	"chatstream/internal/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Multi-provider streaming chat backend",
	Long: `chatstream dispatches chat requests to OpenAI, DeepSeek, Anthropic, Gemini
or a custom relay backend and normalizes their streamed replies into plain text.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Init(cfgFile)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
}

// app is everything a command needs after configuration is loaded
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	dispatcher *core.Dispatcher
	routes     *engine.Engine
}

// bootstrap builds the logger, the routing engine and the dispatcher.
// logOutput overrides the configured log destination when non-empty.
func bootstrap(logOutput string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logOutput != "" {
		cfg.Log.Output = logOutput
	}

	zapLogger, err := logger.Build(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger(zapLogger)

	routes, err := engine.NewEngine(&cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	dispatcher, err := providers.NewDispatcher(&cfg.Engine, config.Credentials(&cfg.Engine), log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, dispatcher: dispatcher, routes: routes}, nil
}
