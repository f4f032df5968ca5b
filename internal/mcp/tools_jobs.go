package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sheetsync/internal/service"
)

func (s *Server) registerJobTools() {
	s.mcp.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List configured sync jobs with their source, destination table, trigger and last run status"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListJobs)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available source types with their configuration fields"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("plan_job",
		mcp.WithDescription("Dry-run a job: show the schema changes and the rows that would be inserted or updated, without writing anything"),
		mcp.WithString("job", mcp.Description("Job name (see list_jobs)"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePlanJob)

	s.mcp.AddTool(mcp.NewTool("run_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a sync job. Alters the destination table and writes marker timestamps into the source file. Only available when the server was started with --allow-run."),
		mcp.WithString("job", mcp.Description("Job name (see list_jobs)"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunJob)

	s.mcp.AddTool(mcp.NewTool("list_run_history",
		mcp.WithDescription("List recent runs, newest first, with row counts and errors"),
		mcp.WithString("job", mcp.Description("Job name (optional, defaults to all jobs)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRunHistory)
}

func (s *Server) handleListJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	states, err := s.sync.JobStates()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jsonResult(states)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sync.ListSources())
}

func (s *Server) handlePlanJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := req.GetString("job", "")
	if job == "" {
		return nil, fmt.Errorf("job is required")
	}
	report, err := s.sync.PlanJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("plan job: %w", err)
	}
	return jsonResult(report)
}

func (s *Server) handleRunJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := req.GetString("job", "")
	if job == "" {
		return nil, fmt.Errorf("job is required")
	}
	if !s.allowRun {
		return textResult("run_job is disabled: restart the server with --allow-run, or use plan_job to preview changes"), nil
	}

	report, err := s.sync.RunJob(ctx, job, service.TriggerMCP)
	if errors.Is(err, service.ErrJobRunning) {
		return textResult(fmt.Sprintf("Job %s is already running", job)), nil
	}
	if err != nil && report == nil {
		return nil, fmt.Errorf("run job: %w", err)
	}
	// A failed run still has a report; return it so the agent sees the error.
	return jsonResult(report)
}

func (s *Server) handleListRunHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := req.GetString("job", "")
	limit := req.GetInt("limit", 20)
	logs, err := s.sync.ListRunLogs(job, limit)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	return jsonResult(logs)
}
