package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/biovalue-ai/fairvalue/internal/workflow"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// RunRef 已启动的工作流
type RunRef struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Runner 工作流启动与进度查询
type Runner interface {
	Start(ctx context.Context, input workflow.WorkflowInput) (RunRef, error)
	Progress(ctx context.Context, workflowID string) (*workflow.ProgressInfo, error)
}

// TemporalRunner 基于 Temporal 客户端的 Runner
type TemporalRunner struct {
	client    client.Client
	taskQueue string
}

// NewTemporalRunner 创建 TemporalRunner
func NewTemporalRunner(c client.Client, taskQueue string) *TemporalRunner {
	return &TemporalRunner{client: c, taskQueue: taskQueue}
}

// Start 启动 FairValueWorkflow
func (t *TemporalRunner) Start(ctx context.Context, input workflow.WorkflowInput) (RunRef, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("fairvalue-%s-%s", input.Fundamentals.Ticker, uuid.NewString()),
		TaskQueue: t.taskQueue,
	}
	run, err := t.client.ExecuteWorkflow(ctx, opts, workflow.FairValueWorkflow, input)
	if err != nil {
		return RunRef{}, fmt.Errorf("failed to start workflow: %w", err)
	}
	return RunRef{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// Progress 查询最新一次运行的进度
func (t *TemporalRunner) Progress(ctx context.Context, workflowID string) (*workflow.ProgressInfo, error) {
	val, err := t.client.QueryWorkflow(ctx, workflowID, "", workflow.ProgressQuery)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}

	var progress workflow.ProgressInfo
	if err := val.Get(&progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &progress, nil
}
