package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veriscope/internal/pipeline"
	"github.com/ppiankov/veriscope/internal/server"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve exposes the evaluator over HTTP:

  POST /api/v1/evaluate   {"url": "..."} or {"text": "...", "source": "image"}
  GET  /api/v1/index      index statistics
  GET  /health            liveness`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		p, err := pipeline.NewPipeline(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init pipeline: %w", err)
		}
		defer p.Close()

		return server.New(cfg.Server, p.Evaluator).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
