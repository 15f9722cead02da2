package input

import (
	"context"

	"formpilot/internal/domain/entity"
)

// WorkflowRunner is the invocation surface exposed to callers (CLI, HTTP).
type WorkflowRunner interface {
	Run(ctx context.Context, req entity.WorkflowRequest) entity.WorkflowOutcome
	RunBatch(ctx context.Context, reqs []entity.WorkflowRequest) []entity.WorkflowOutcome
	Status() entity.SessionStatus
	Stop()
}
