package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/impactgate/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the impact pipeline and gate.

Endpoints:
  GET  /health                                   Health check
  GET  /metrics                                  Prometheus metrics
  POST /api/analyze                              Analyze a change
  POST /api/trigger                              Ask whether a change needs analysis
  GET  /api/analyses                             List analyses
  GET  /api/analyses/{id}                        Fetch one analysis
  POST /api/analyses/{id}/approve                Approve blockers
  POST /api/analyses/{id}/override               Force override every blocker
  POST /api/analyses/{id}/revoke                 Revoke approval
  POST /api/analyses/{id}/validations/{vid}      Record a validation result
  POST /api/analyses/{id}/risks/{rid}/mitigate   Mark a risk mitigated
  GET  /api/ws                                   WebSocket gate status feed`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default from config, 127.0.0.1)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (default from config, 6142)")
	serveCmd.Flags().String("graph", "", "knowledge graph YAML file")
	serveCmd.Flags().String("repo", "", "repository to scan for imports")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	applyGraphFlags(cmd)

	svc, store, err := newService(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer store.Close()

	listen := fmt.Sprintf("%s:%d", cfg.Server.Addr, cfg.Server.Port)
	return api.New(listen, svc, logger).ListenAndServe(cmd.Context())
}
