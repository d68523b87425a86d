// Package cli implements the impactgate command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/audit"
	"github.com/sprite-ai/impactgate/internal/config"
	"github.com/sprite-ai/impactgate/internal/impact"
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if err != nil {
		return 1
	}
	return 0
}

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "impactgate",
	Short: "Analyze the impact of planned changes and gate their implementation",
	Long: `impactgate estimates what a planned change will touch, which risks it
carries and which validations it needs, then decides whether implementation
may start: clear, warning or blocked.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.LogLevel = level
		}
		cfg = loaded
		logger = config.NewLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	var exit *ExitError
	if err != nil && !errors.As(err, &exit) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// newService builds the pipeline from the loaded configuration. The audit
// store is opened only when withAudit is set; the caller closes it.
func newService(ctx context.Context, withAudit bool) (*impact.Service, *audit.Store, error) {
	providers, err := impact.LoadProviders(ctx, cfg.Graph, logger)
	if err != nil {
		return nil, nil, err
	}
	analyzer, err := impact.NewAnalyzer(cfg, providers, logger)
	if err != nil {
		return nil, nil, err
	}

	var store *audit.Store
	var recorder impact.AuditRecorder
	if withAudit {
		store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, nil, err
		}
		recorder = store
	}
	return impact.NewService(analyzer, nil, recorder, logger), store, nil
}
