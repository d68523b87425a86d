package cli

import (
	"fmt"
	"os"
	"os/user"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review [description]",
	Short: "Analyze a change and review its gate interactively",
	Long: `Analyze a planned change and open a terminal view of its gate. Select
blockers with space and approve them with a, or force-override every blocker
with o then y. Every approval and override is written to the audit log.

When stdout is not a terminal the gate is printed instead.`,
	Example: `  impactgate review "Drop the legacy sessions table" --module sessions
  impactgate review --diff main..HEAD --approver dana`,
	RunE: runReview,
}

func init() {
	addInputFlags(reviewCmd)
	reviewCmd.Flags().String("approver", "", "name recorded on approvals (default: current user)")
	reviewCmd.Flags().String("reason", "", "reason recorded on approvals")
}

func runReview(cmd *cobra.Command, args []string) error {
	in, err := changeInput(cmd, args)
	if err != nil {
		return err
	}
	applyGraphFlags(cmd)

	svc, store, err := newService(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := svc.Analyze(cmd.Context(), in)
	if err != nil {
		return err
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprint(cmd.OutOrStdout(), tui.Summary(*a))
		return gateExit(a.Gate.Status)
	}

	approver, _ := cmd.Flags().GetString("approver")
	if approver == "" {
		approver = currentUser()
	}
	reason, _ := cmd.Flags().GetString("reason")

	result, err := tui.Run(cmd.Context(), *a, svc.Gate(), store, approver, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Gate %s (%d audit record(s) written)\n",
		statusIcon(result.Gate.Status), result.Gate.Status, len(result.Audit))
	return gateExit(result.Gate.Status)
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
