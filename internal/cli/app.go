package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/conorfennell/grove/internal/config"
	"github.com/conorfennell/grove/internal/fsrs"
	"github.com/conorfennell/grove/internal/health"
	"github.com/conorfennell/grove/internal/importer"
	"github.com/conorfennell/grove/internal/logging"
	"github.com/conorfennell/grove/internal/review"
	"github.com/conorfennell/grove/internal/storage"
	"github.com/spf13/cobra"
)

// app is the fully wired application for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.DB
	reviews *review.Service
	health  *health.Service
	imports *importer.Service
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	sched, err := fsrs.NewScheduler(cfg.Scheduler.FSRS())
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("Database opened", "path", db.Path)

	hs := health.NewService(db, sched, logger, cfg.Health.DefaultTimezone)
	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		reviews: review.NewService(db, sched, hs, logger),
		health:  hs,
		imports: importer.NewService(db, hs, logger, cfg.Import.ReposDir),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
