// Package cli provides the command-line interface for astractl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sr-857/astraguard-client/internal/api"
	"github.com/sr-857/astraguard-client/internal/config"
	"github.com/sr-857/astraguard-client/internal/logging"
	"github.com/sr-857/astraguard-client/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiKey     string
	apiBaseURL string
	verbose    bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "astractl",
		Short: "AstraGuard client - admission-controlled access to the AstraGuard API",
		Long: `astractl ` + version.Version + ` - Built: ` + version.BuildTime + `
Command-line companion for the AstraGuard backend. Every request passes
through client-side admission control: a concurrency cap, per-endpoint
rate limits scaled by backend health, and a global 429 backoff clock.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "AstraGuard API key (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "AstraGuard API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newFloodCmd())
	rootCmd.AddCommand(newMockServerCmd())

	return rootCmd
}

// Execute runs the root command with signal-aware cancellation.
func Execute() {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancelFunc()
	}()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from file and flags. Flags win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if apiBaseURL != "" {
		cfg.BaseURL = apiBaseURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	return cfg, nil
}

// newClient builds an admission-controlled client from the resolved config.
func newClient(opts ...api.Option) (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts = append([]api.Option{api.WithLogger(logger)}, opts...)
	client, err := api.New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
