package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/audit"
	"github.com/sprite-ai/impactgate/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit [analysis-id]",
	Short: "Show gate audit records",
	Long: `List recent approvals, overrides and revocations, newest first, or the
full history of one analysis in the order it happened.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntP("limit", "n", audit.DefaultLimit, "number of recent records to show")
	auditCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}

func runAudit(cmd *cobra.Command, args []string) error {
	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var logs []model.GateAuditLog
	if len(args) == 1 {
		logs, err = store.ForAnalysis(cmd.Context(), args[0])
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		logs, err = store.Recent(cmd.Context(), limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return outputJSON(out, logs)
	}

	if len(logs) == 0 {
		fmt.Fprintln(out, "No audit records.")
		return nil
	}
	for _, l := range logs {
		fmt.Fprintf(out, "%s  %-16s %-8s %s -> %s  %s\n",
			l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Action, l.Approver,
			l.PreviousStatus, l.NewStatus, l.AnalysisID)
		if l.Reason != "" {
			fmt.Fprintf(out, "    reason: %s\n", l.Reason)
		}
		if len(l.BlockersBypassed) > 0 {
			fmt.Fprintf(out, "    blockers: %s\n", strings.Join(l.BlockersBypassed, ", "))
		}
	}
	return nil
}
