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

	"github.com/ppiankov/decisio/internal/api"
	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/report"
	"github.com/spf13/cobra"
)

var (
	serveAddr       string
	serveRunTimeout time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	Long: `Serve exposes sessions over a JSON HTTP API:

  POST /sessions                {"question": "..."}    start a session
  GET  /sessions                ?limit=N               list sessions
  GET  /sessions/{id}           ?format=md             get a session or its report
  POST /sessions/{id}/answers   {"answers": [...], "skip": false}
  POST /sessions/{id}/cancel
  GET  /health

Example:
  decisio serve
  decisio serve --addr 127.0.0.1:9090 --run-timeout 15m`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().DurationVar(&serveRunTimeout, "run-timeout", 10*time.Minute, "timeout of each session run (0 for none)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// The server logs requests and run outcomes even without --verbose
	log := a.log
	if log == nil {
		log = logging.New(os.Stderr, false)
	}

	srv := api.NewServer(a.engine, report.NewRenderer(a.config.Output.IncludeFooter), log, serveRunTimeout)
	httpSrv := &http.Server{
		Addr:              serveAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	a.out.Success("Listening on %s", serveAddr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.out.Success("Shutting down, canceling running sessions...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.out.Warning("http shutdown: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
