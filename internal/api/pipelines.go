// Package api contains the HTTP handlers for the orchestration engine.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/engine"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/registry"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/repository"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Engine *engine.Engine
}

// NewServer creates a new Server.
func NewServer(eng *engine.Engine) *Server {
	return &Server{Engine: eng}
}

// RegisterRoutes mounts all engine routes on the given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/pipelines", s.CreatePipeline)
	g.GET("/pipelines", s.ListPipelines)
	g.GET("/pipelines/:id", s.GetPipeline)
	g.POST("/pipelines/:id/trigger", s.TriggerPipeline)
	g.GET("/runs", s.ListRuns)
	g.GET("/runs/:id", s.GetRun)
	g.POST("/runs/:id/cancel", s.CancelRun)
	g.POST("/modules", s.RegisterModule)
	g.GET("/modules", s.ListModules)
}

// tenantID extracts the authenticated tenant id injected by the auth
// middleware. Every handler requires it; the engine never holds ambient
// session state.
func tenantID(c echo.Context) (string, error) {
	id, ok := c.Request().Context().Value("tenant_id").(string)
	if !ok || id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Tenant ID not found in context")
	}
	return id, nil
}

// httpError maps engine and store errors onto HTTP status codes. Cross-tenant
// lookups surface as plain 404s so resource existence is never revealed.
func httpError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, engine.ErrInvalidDefinition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrDuplicateModule), errors.Is(err, repository.ErrDuplicateModule):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrUnknownModule):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrRunAlreadyTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrEngineUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// CreatePipelineRequest is the payload for creating a pipeline definition.
type CreatePipelineRequest struct {
	Name  string                `json:"name"`
	Steps []models.PipelineStep `json:"steps"`
}

// CreatePipeline creates a pipeline definition
// (POST /api/v1/pipelines)
func (s *Server) CreatePipeline(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	var req CreatePipelineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	def, err := s.Engine.CreateDefinition(ctx, tenant, req.Name, req.Steps)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, def)
}

// ListPipelines returns the tenant's pipeline definitions
// (GET /api/v1/pipelines)
func (s *Server) ListPipelines(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	defs, err := s.Engine.ListDefinitions(ctx, tenant)
	if err != nil {
		return httpError(err)
	}
	if defs == nil {
		defs = []*models.PipelineDefinition{}
	}
	return c.JSON(http.StatusOK, defs)
}

// GetPipeline returns one pipeline definition
// (GET /api/v1/pipelines/:id)
func (s *Server) GetPipeline(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	def, err := s.Engine.GetDefinition(ctx, tenant, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, def)
}

// TriggerRequest is the payload for triggering a run.
type TriggerRequest struct {
	Policy models.FailurePolicy `json:"policy,omitempty"`
}

// TriggerResponse acknowledges an accepted trigger.
type TriggerResponse struct {
	RunID string `json:"run_id"`
}

// TriggerPipeline triggers an asynchronous run of a definition
// (POST /api/v1/pipelines/:id/trigger)
func (s *Server) TriggerPipeline(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	runID, err := s.Engine.Trigger(ctx, tenant, c.Param("id"), req.Policy)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, TriggerResponse{RunID: runID})
}

// ListRuns returns the tenant's runs
// (GET /api/v1/runs)
func (s *Server) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	runs, err := s.Engine.ListRuns(ctx, tenant)
	if err != nil {
		return httpError(err)
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns a run with its step results
// (GET /api/v1/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	run, err := s.Engine.GetRun(ctx, tenant, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun requests cancellation of a run
// (POST /api/v1/runs/:id/cancel)
func (s *Server) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	if err := s.Engine.Cancel(ctx, tenant, c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// RegisterModuleRequest is the payload for registering a module.
type RegisterModuleRequest struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Image       string                 `json:"image,omitempty"`
	Endpoint    string                 `json:"endpoint"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// RegisterModule registers a module capability
// (POST /api/v1/modules)
func (s *Server) RegisterModule(c echo.Context) error {
	ctx := c.Request().Context()

	var req RegisterModuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.ID == "" || req.Name == "" || req.Endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id, name and endpoint are required")
	}

	info := models.ModuleInfo{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		Endpoint:    req.Endpoint,
		InputSchema: req.InputSchema,
	}
	if err := s.Engine.RegisterModule(ctx, info, registry.NewHTTPCapability(req.Endpoint)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, info)
}

// ListModules returns the registered modules
// (GET /api/v1/modules)
func (s *Server) ListModules(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Engine.ListModules(c.Request().Context()))
}
