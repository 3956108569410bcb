package handler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/model"
)

// ShellCommandExecutor runs a command described by promise metadata:
// "command" (required), "args" (optional, space separated) and
// "working_dir" (optional). Cancellation is honored through the context.
type ShellCommandExecutor struct {
	logger *zap.Logger
}

// NewShellCommandExecutor creates a new shell command executor
func NewShellCommandExecutor(logger *zap.Logger) *ShellCommandExecutor {
	return &ShellCommandExecutor{
		logger: logger.Named("shell-executor"),
	}
}

// Execute runs the command
func (h *ShellCommandExecutor) Execute(ctx context.Context, promise *model.Promise) (*model.PromiseResult, error) {
	command := promise.Metadata["command"]
	if command == "" {
		return nil, fmt.Errorf("metadata key %q is required", "command")
	}

	var args []string
	if a := promise.Metadata["args"]; a != "" {
		args = strings.Fields(a)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if dir := promise.Metadata["working_dir"]; dir != "" {
		cmd.Dir = dir
	}

	h.logger.Info("Executing shell command",
		zap.String("promise_id", promise.ID),
		zap.String("command", command),
		zap.Strings("args", args))

	output, err := cmd.CombinedOutput()

	result := &model.PromiseResult{
		PromiseID:   promise.ID,
		CompletedAt: time.Now(),
	}

	if err != nil {
		result.Status = model.PromiseStatusFailed
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = "command execution timed out"
		} else {
			result.Error = strings.TrimSpace(string(output))
			if result.Error == "" {
				result.Error = err.Error()
			}
		}
		return result, nil
	}

	result.Status = model.PromiseStatusCompleted
	result.Summary = strings.TrimSpace(string(output))
	return result, nil
}
