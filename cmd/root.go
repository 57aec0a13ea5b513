package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/internal/config"
	"github.com/jobdesk/naukri-refresh/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// NewRootCommand builds a fresh command tree. Commands never share state
// across invocations; tests build their own tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "naukri-refresh",
		Short:   "Keeps a naukri.com profile fresh by logging in and rewriting the resume headline.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			loaded, err := config.Load(cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "naukri-refresh",
				})
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting naukri-refresh", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

// Execute runs the command tree under a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return err
}
