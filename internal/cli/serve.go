package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/grove/internal/importer"
	"github.com/conorfennell/grove/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("timezone", "", "Default IANA timezone for accounts without one")
	serveCmd.Flags().String("sources-root", "", "Directory the API may import local sources from (default: git URLs only)")
	serveCmd.Flags().Float64("desired-retention", 0.9, "Target recall probability used for scheduling")
	serveCmd.Flags().Bool("fuzz", false, "Randomize review intervals slightly")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := web.NewServer(a.db, web.Services{
		Reviews: a.reviews,
		Health:  a.health,
		Imports: importer.NewService(a.db, a.health, a.logger, a.cfg.Import.ReposDir,
			importer.WithSourcesRoot(a.cfg.Import.SourcesRoot)),
	}, a.logger, VersionString())

	httpServer := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("Grove serving", "addr", httpServer.Addr, "db", a.db.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
