package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/engine"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/registry"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/repository"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

type quietLogger struct{}

func (quietLogger) Debug(msg string, args ...any) {}
func (quietLogger) Info(msg string, args ...any)  {}
func (quietLogger) Warn(msg string, args ...any)  {}
func (quietLogger) Error(msg string, args ...any) {}

// withTenant mimics the auth middleware's context injection.
func withTenant(tenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), "tenant_id", tenant)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func newTestServer(t *testing.T, tenant string) (*echo.Echo, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(repository.NewMemoryStore(), registry.New(), nil, quietLogger{}, engine.Options{})
	require.NoError(t, err)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})

	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler()
	g := e.Group("/api/v1")
	g.Use(withTenant(tenant))
	NewServer(eng).RegisterRoutes(g)
	return e, eng
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreatePipeline(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodPost, "/api/v1/pipelines",
		`{"name":"scan","steps":[{"module_id":"nmap-scan","config":{"target":"example.com"}}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var def models.PipelineDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "tenant-1", def.TenantID)
	assert.Equal(t, "scan", def.Name)
}

func TestCreatePipeline_Invalid(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodPost, "/api/v1/pipelines", `{"name":"empty","steps":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
}

func TestCreatePipeline_DuplicateName(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	body := `{"name":"scan","steps":[{"module_id":"m"}]}`
	rec := doJSON(e, http.MethodPost, "/api/v1/pipelines", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/pipelines", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetPipeline_NotFound(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodGet, "/api/v1/pipelines/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
}

func TestListPipelines_Empty(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodGet, "/api/v1/pipelines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestTriggerPipeline(t *testing.T) {
	e, eng := newTestServer(t, "tenant-1")

	require.NoError(t, eng.Registry().Register(models.ModuleInfo{ID: "echo"},
		registry.CapabilityFunc(func(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
			return []byte("done"), nil
		})))

	rec := doJSON(e, http.MethodPost, "/api/v1/pipelines",
		`{"name":"p","steps":[{"module_id":"echo"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var def models.PipelineDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))

	rec = doJSON(e, http.MethodPost, "/api/v1/pipelines/"+def.ID+"/trigger", `{}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var trig TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trig))
	require.NotEmpty(t, trig.RunID)

	require.Eventually(t, func() bool {
		rec := doJSON(e, http.MethodGet, "/api/v1/runs/"+trig.RunID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var run models.Run
		if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
			return false
		}
		return run.Status == models.RunStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(e, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestTriggerPipeline_UnknownModule(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodPost, "/api/v1/pipelines",
		`{"name":"p","steps":[{"module_id":"ghost"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var def models.PipelineDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))

	rec = doJSON(e, http.MethodPost, "/api/v1/pipelines/"+def.ID+"/trigger", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancelRun_Errors(t *testing.T) {
	e, eng := newTestServer(t, "tenant-1")

	rec := doJSON(e, http.MethodPost, "/api/v1/runs/ghost/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, eng.Registry().Register(models.ModuleInfo{ID: "echo"},
		registry.CapabilityFunc(func(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
			return nil, nil
		})))
	ctx := context.Background()
	def, err := eng.CreateDefinition(ctx, "tenant-1", "p", []models.PipelineStep{{ModuleID: "echo"}})
	require.NoError(t, err)
	runID, err := eng.Trigger(ctx, "tenant-1", def.ID, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		run, err := eng.GetRun(ctx, "tenant-1", runID)
		return err == nil && run.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(e, http.MethodPost, fmt.Sprintf("/api/v1/runs/%s/cancel", runID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterModule(t *testing.T) {
	e, _ := newTestServer(t, "tenant-1")

	body := `{"id":"nmap-scan","name":"Nmap","endpoint":"http://nmap:9001","input_schema":{"required":["target"]}}`
	rec := doJSON(e, http.MethodPost, "/api/v1/modules", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/api/v1/modules", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/modules", `{"id":"x","name":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []models.ModuleInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "nmap-scan", infos[0].ID)
}

func TestMissingTenant(t *testing.T) {
	e, _ := newTestServer(t, "")

	rec := doJSON(e, http.MethodGet, "/api/v1/pipelines", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
}
