package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("review_sync",
		mcp.WithPromptDescription("Review what the next run of a job would change before running it"),
		mcp.WithArgument("job",
			mcp.ArgumentDescription("Job name"),
			mcp.RequiredArgument(),
		),
	), s.handleReviewSyncPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("diagnose_failures",
		mcp.WithPromptDescription("Investigate why a job's recent runs failed"),
		mcp.WithArgument("job",
			mcp.ArgumentDescription("Job name"),
			mcp.RequiredArgument(),
		),
	), s.handleDiagnosePrompt)
}

func (s *Server) handleReviewSyncPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	job := req.Params.Arguments["job"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review the pending changes of %s", job),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review the next sync of job "%s". Follow these steps:

1. Call plan_job with job "%s".
2. Summarize the schema plan: whether the table will be created and which columns will be added.
3. Summarize the diff: how many rows will be inserted, updated and left unchanged. List the updated keys with the columns that changed.
4. Point out anything surprising, such as a large number of updates or new columns that look like typos.

Do not call run_job unless I ask you to.`, job, job),
				},
			},
		},
	}, nil
}

func (s *Server) handleDiagnosePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	job := req.Params.Arguments["job"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Diagnose failures of %s", job),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Find out why job "%s" is failing:

1. Call list_run_history with job "%s" and look at the error of the failed runs.
2. Errors starting with "connect" mean the database was unreachable. "schema:" means an invalid column or table name. "data:" means a missing or duplicate key in the source and names the rows. "write" means a statement failed and the run was rolled back.
3. If the error names source rows, call plan_job to confirm the problem is still present.
4. Suggest the smallest fix to the source file or the job configuration.`, job, job),
				},
			},
		},
	}, nil
}
