package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	httpapi "github.com/openclock/worklog/internal/worklog/api/http"
	"github.com/openclock/worklog/internal/worklog/engine"
	"github.com/openclock/worklog/internal/worklog/projection"
	storagesqlite "github.com/openclock/worklog/internal/worklog/storage/sqlite"
)

// Server hosts the worklog service: the HTTP API plus the background outbox
// worker that converges projections.
type Server struct {
	cfg         Config
	logger      zerolog.Logger
	echo        *echo.Echo
	events      *storagesqlite.Store
	projections *storagesqlite.Store
	applier     *projection.Applier
	engine      *engine.Engine
}

// NewServer opens storage and wires the engine, projections, and HTTP routes.
func NewServer(cfg Config, logger zerolog.Logger) (*Server, error) {
	switch cfg.ProjectionApplyMode {
	case ApplyModeOutbox, ApplyModeInline:
	default:
		return nil, fmt.Errorf("unknown projection apply mode %q", cfg.ProjectionApplyMode)
	}

	events, projections, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	applier := &projection.Applier{
		Events:      events,
		Projections: projections,
	}
	eng := &engine.Engine{
		Events:    events,
		Snapshots: events,
		Directory: projections,
		Logger:    logger,
	}

	var commands httpapi.CommandRunner = eng
	if cfg.ProjectionApplyMode == ApplyModeInline {
		commands = &inlineApplyRunner{
			engine:  eng,
			applier: applier,
			logger:  logger,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	handler := &httpapi.Handler{
		Commands:  commands,
		Reads:     projections,
		Admin:     projections,
		Rebuilder: applier,
		Requeuer:  events,
		Compactor: events,
		Logger:    logger,
	}
	handler.Register(e)

	return &Server{
		cfg:         cfg,
		logger:      logger,
		echo:        e,
		events:      events,
		projections: projections,
		applier:     applier,
		engine:      eng,
	}, nil
}

func openStores(cfg Config) (*storagesqlite.Store, *storagesqlite.Store, error) {
	if err := ensureDir(cfg.EventsDBPath); err != nil {
		return nil, nil, err
	}
	if err := ensureDir(cfg.ProjectionsDBPath); err != nil {
		return nil, nil, err
	}
	events, err := storagesqlite.OpenEvents(
		cfg.EventsDBPath,
		storagesqlite.WithOutboxEnabled(cfg.ProjectionApplyMode == ApplyModeOutbox),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open events store: %w", err)
	}
	projections, err := storagesqlite.OpenProjections(cfg.ProjectionsDBPath)
	if err != nil {
		_ = events.Close()
		return nil, nil, fmt.Errorf("open projections store: %w", err)
	}
	return events, projections, nil
}

// ensureDir creates parent paths for sqlite files so startup can create DB
// files.
func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}

// Serve runs the HTTP listener and the outbox worker until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStores()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if s.cfg.ProjectionApplyMode == ApplyModeOutbox {
		go s.runOutboxWorker(workerCtx)
	}

	s.logger.Info().Str("addr", s.cfg.HTTPAddr).Msg("worklog server listening")
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.Start(s.cfg.HTTPAddr)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	select {
	case <-ctx.Done():
		stopWorker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func (s *Server) closeStores() {
	if s == nil {
		return
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close events store")
		}
	}
	if s.projections != nil {
		if err := s.projections.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("close projections store")
		}
	}
}
