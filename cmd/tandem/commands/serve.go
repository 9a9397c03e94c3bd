package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/app"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tandem HTTP server",
	Long: `Start tandem as a headless server exposing the HTTP API, with an SSE
event stream on /event.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4096, "port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "hostname", "127.0.0.1", "hostname to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	root, cfg, cleanup, err := setup(false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, app.Options{WorkDir: root})
	if err != nil {
		return err
	}
	defer a.Shutdown()

	srvCfg := server.DefaultConfig()
	srvCfg.Host = serveHost
	srvCfg.Port = servePort
	srv := server.New(srvCfg, a)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logging.Info().
		Str("addr", serveHost).
		Int("port", servePort).
		Str("root", root).
		Msg("tandem server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
