// Package httpapi exposes the run API: trigger runs, inspect snapshots and
// scrape metrics.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
	"TopicNewsletter/internal/usecase"
)

const maxRecentRuns = 100

// Runner executes one planned run.
type Runner interface {
	Process(ctx context.Context, plan usecase.Plan) (usecase.Result, error)
}

// Deps wires the server.
type Deps struct {
	Runner  Runner
	States  ports.StateStore
	Plan    func() usecase.Plan
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the echo-backed run API. Runs started through it outlive the
// request and are joined on Shutdown.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	states  ports.StateStore
	plan    func() usecase.Plan
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

// New builds the server and registers its routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		echo:    echo.New(),
		runner:  deps.Runner,
		states:  deps.States,
		plan:    deps.Plan,
		logger:  logger.With("component", "httpapi"),
		baseCtx: ctx,
		cancel:  cancel,
		now:     time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	s.echo.GET("/healthz", s.health)
	s.echo.POST("/runs", s.startRun)
	s.echo.GET("/runs", s.listRuns)
	s.echo.GET("/runs/:id", s.getRun)
	if deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("run api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels in-flight runs between topics
// and waits for them to return.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

type startRunRequest struct {
	Topics      []string `json:"topics"`
	Parallelism int      `json:"parallelism"`
}

type startRunResponse struct {
	RunID  string        `json:"run_id"`
	Status domain.Status `json:"status"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startRun(c echo.Context) error {
	if s.runner == nil || s.plan == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "runs are not configured")
	}

	var req startRunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if req.Parallelism < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "parallelism must not be negative")
	}

	plan, err := s.plan().WithTopics(req.Topics)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Parallelism > 0 {
		plan.Options.Parallelism = req.Parallelism
	}
	plan.Options.RunID = usecase.NewRunID()
	runID := plan.Options.RunID

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.runner.Process(s.baseCtx, plan)
		log := s.logger.With("run_id", runID)
		switch {
		case err == nil:
			log.Info("api run finished")
		case usecase.IsSkipped(err):
			log.Warn("api run skipped", "reason", err)
		default:
			status := domain.Status("")
			if res.State != nil {
				status = res.State.Status
			}
			log.Error("api run failed", "status", status, "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, startRunResponse{RunID: runID, Status: domain.StatusPending})
}

type runView struct {
	*domain.WorkflowState
	Metrics domain.Metrics `json:"metrics"`
}

func (s *Server) getRun(c echo.Context) error {
	if s.states == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "state store is not configured")
	}
	state, err := s.states.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runView{WorkflowState: state, Metrics: state.Metrics(s.now())})
}

func (s *Server) listRuns(c echo.Context) error {
	if s.states == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "state store is not configured")
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxRecentRuns)
	}
	ids, err := s.states.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]string{"runs": ids})
}
