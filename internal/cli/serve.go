package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/config"
	"github.com/ordokr/LMS/internal/server"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	DB   string
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync engine over HTTP",
		Long: `Open (or create) the SQLite database, recover state and the chain head
from it, and serve the HTTP API until interrupted.

When --config names a file, changes to log.level in it are applied
without a restart.

Example:
  lmssync serve --db ./lmssync.db --addr 127.0.0.1:8080
  LMSSYNC_LOG_FORMAT=json lmssync serve --config ./lmssync.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, v, err := opts.loadConfig(cmd, map[string]string{"db": "db", "addr": "addr"})
	if err != nil {
		return err
	}
	logger, level, closer, err := opts.logger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	config.WatchLevel(v, level, logger)

	rt := bridge.NewRuntime(cfg.RuntimeOptions(logger)...)
	if err := rt.Init(ctx); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("open %s", cfg.DB), err)
	}
	defer func() {
		if err := rt.Teardown(); err != nil {
			logger.Error("teardown", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	return Serve(ctx, ln, rt, logger)
}

// Serve answers HTTP requests on ln until ctx is done, then shuts the server
// down gracefully. rt must already be initialized and is not torn down.
func Serve(ctx context.Context, ln net.Listener, rt *bridge.Runtime, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           server.New(rt, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
