package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	jobsURI          = "sheetsync://jobs"
	historyURIPrefix = "sheetsync://jobs/"
	historyURISuffix = "/history"
)

func (s *Server) registerResources() {
	// ── sheetsync://jobs ───────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		jobsURI,
		"Configured sync jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── sheetsync://jobs/{job}/history ─────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			historyURIPrefix+"{job}"+historyURISuffix,
			"Run history of a job",
		),
		s.handleJobHistoryResource,
	)
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	states, err := s.sync.JobStates()
	if err != nil {
		return nil, err
	}
	return jsonContents(jobsURI, states)
}

func (s *Server) handleJobHistoryResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	job := jobFromHistoryURI(uri)
	if job == "" {
		return nil, fmt.Errorf("could not extract job from URI: %s", uri)
	}
	logs, err := s.sync.ListRunLogs(job, 50)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, logs)
}

// jobFromHistoryURI extracts the job from "sheetsync://jobs/{job}/history".
func jobFromHistoryURI(uri string) string {
	if !strings.HasPrefix(uri, historyURIPrefix) || !strings.HasSuffix(uri, historyURISuffix) {
		return ""
	}
	job := strings.TrimSuffix(strings.TrimPrefix(uri, historyURIPrefix), historyURISuffix)
	if strings.Contains(job, "/") {
		return ""
	}
	return job
}
