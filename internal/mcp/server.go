package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/engine"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// Server exposes the orchestration engine as MCP tools so agents can define
// and trigger pipelines. Tenant identity is an explicit tool argument; the
// engine never infers it from ambient state.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
}

func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Pipeline Orchestrator",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		engine: eng,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_pipeline",
			mcp.WithDescription("Create a pipeline definition for a tenant"),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("The owning tenant id")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Unique pipeline name within the tenant")),
			mcp.WithString("steps", mcp.Required(), mcp.Description("JSON array of {module_id, config} steps")),
		),
		s.handleCreatePipeline,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"trigger_pipeline",
			mcp.WithDescription("Trigger an asynchronous run of a pipeline definition"),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("The owning tenant id")),
			mcp.WithString("definition_id", mcp.Required(), mcp.Description("The pipeline definition id")),
			mcp.WithString("policy", mcp.Description("Failure policy: abort (default) or continue")),
		),
		s.handleTriggerPipeline,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run",
			mcp.WithDescription("Get the status and step results of a run"),
			mcp.WithString("tenant_id", mcp.Required(), mcp.Description("The owning tenant id")),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The run id")),
		),
		s.handleGetRun,
	)
}

func (s *Server) handleCreatePipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return mcp.NewToolResultError("Missing required parameter: tenant_id"), nil
	}
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}
	stepsJSON, ok := args["steps"].(string)
	if !ok || stepsJSON == "" {
		return mcp.NewToolResultError("Missing required parameter: steps"), nil
	}

	var steps []models.PipelineStep
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid steps JSON: %v", err)), nil
	}

	def, err := s.engine.CreateDefinition(ctx, tenantID, name, steps)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create pipeline: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(def)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleTriggerPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return mcp.NewToolResultError("Missing required parameter: tenant_id"), nil
	}
	definitionID, ok := args["definition_id"].(string)
	if !ok || definitionID == "" {
		return mcp.NewToolResultError("Missing required parameter: definition_id"), nil
	}

	policy := models.FailurePolicy("")
	if p, ok := args["policy"].(string); ok && p != "" {
		policy = models.FailurePolicy(p)
	}

	runID, err := s.engine.Trigger(ctx, tenantID, definitionID, policy)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to trigger pipeline: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(`{"run_id":%q}`, runID)), nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	tenantID, ok := args["tenant_id"].(string)
	if !ok || tenantID == "" {
		return mcp.NewToolResultError("Missing required parameter: tenant_id"), nil
	}
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}

	run, err := s.engine.GetRun(ctx, tenantID, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get run: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(run)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
