package toolruntime

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecuteCommandTool is the name a CommandTool registers itself under.
const ExecuteCommandTool = "execute_command"

// CommandTool runs a shell command and returns its combined output,
// adapted from the teacher's command-execution tool (pkg/tools/command.go)
// onto the Tool Runtime's Tool interface. Sandboxing is an allow-list of
// base commands; an empty Allowed means every command is permitted.
type CommandTool struct {
	WorkingDirectory string
	MaxExecutionTime time.Duration
	Allowed          []string
}

// NewCommandTool constructs a CommandTool with teacher-matching defaults:
// cwd ".", a 30s execution budget.
func NewCommandTool(workingDirectory string, allowed []string) *CommandTool {
	if workingDirectory == "" {
		workingDirectory = "."
	}
	return &CommandTool{
		WorkingDirectory: workingDirectory,
		MaxExecutionTime: 30 * time.Second,
		Allowed:          allowed,
	}
}

func (t *CommandTool) GetName() string { return ExecuteCommandTool }

func (t *CommandTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        ExecuteCommandTool,
		Description: "Execute a shell command and return its combined stdout/stderr.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command to execute (supports pipes, redirects, etc.)",
				},
			},
			"required": []string{"command"},
		},
	}
}

func (t *CommandTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return ToolResult{Success: false, ToolName: t.GetName(), Error: "command parameter is required"}, nil
	}
	if err := t.validate(command); err != nil {
		return ToolResult{Success: false, ToolName: t.GetName(), Error: err.Error()}, nil
	}

	execCtx := ctx
	if t.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.MaxExecutionTime)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = t.WorkingDirectory
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	result := ToolResult{
		ToolName:      t.GetName(),
		Content:       string(output),
		Success:       err == nil,
		ExecutionTime: elapsed,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}

func (t *CommandTool) validate(command string) error {
	if len(t.Allowed) == 0 {
		return nil
	}
	base := extractBaseCommand(command)
	for _, allowed := range t.Allowed {
		if base == allowed {
			return nil
		}
	}
	return fmt.Errorf("command not allowed: %s (allowed: %v)", base, t.Allowed)
}

func extractBaseCommand(command string) string {
	parts := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';'
	})
	if len(parts) == 0 {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(parts[0]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
