package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/clipforge/internal/server"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch API over HTTP",
		Long: `Start an HTTP server that accepts manifests and drives batches.

Endpoints:
  POST /batch           start a batch (manifest body)
  GET  /batch           current or checkpointed batch
  POST /batch/cancel    stop at the next job boundary
  POST /batch/resume    resume an interrupted batch
  POST /batch/decline   discard an interrupted batch
  POST /blobs           upload media, returns a blob: locator
  GET  /healthz         store health
  GET  /metrics         Prometheus metrics

Example:
  clipforge serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	addr := rt.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	ctx, stop := withSignals(cmd.Context(), rt)
	defer stop()

	srv := server.New(ctx, rt.orch, rt.store, rt.log, rt.metrics, server.WithBlobs(rt.preparer))
	httpSrv := &http.Server{Addr: addr, Handler: srv.Routes()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	rt.log.Info("server starting", slog.String("addr", addr), slog.String("db", rt.cfg.Checkpoint.DB))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
	case <-ctx.Done():
	}

	rt.log.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		rt.log.Error("shutdown error", "error", err)
	}
	srv.Wait()
	rt.log.Info("server stopped")
	return nil
}
