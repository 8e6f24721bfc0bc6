package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/evidencecheck/internal/api"
	"github.com/ppiankov/evidencecheck/internal/logging"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve exposes the analysis engine over HTTP:
  GET  /health             liveness
  POST /analyze            text_description plus detections (JSON, form or file) or clip_url
  POST /analyze-text-only  claim extraction only

Example:
  evidencecheck serve --addr :8000
  EVIDENCECHECK_SERVER_CLIENT_RPS=2 evidencecheck serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	addEngineFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyEngineFlags(cmd, cfg)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewHTTPServer(p)
	logger := logging.New("server")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
