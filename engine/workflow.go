package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/supervisor"
)

// StepResult is the accepted outcome of one workflow step.
type StepResult struct {
	StepNumber int
	StepName   string
	Result     string
}

// WorkflowResult is the outcome of a complete workflow run.
type WorkflowResult struct {
	Plan  groupchat.Workflow
	Steps []StepResult
}

// PlanWorkflow runs the workflow-planning call (§4.D.2 phase 1): a single
// supervisor invocation produces a complete Workflow document up front.
func (e *Engine) PlanWorkflow(ctx context.Context, userRequest string) (groupchat.Workflow, error) {
	gw, err := e.supervisorGateway()
	if err != nil {
		return groupchat.Workflow{}, err
	}

	doc, err := supervisor.GenerateWorkflow(ctx, gw, e.supervisorPrompt(), e.roster(), userRequest)
	if err != nil {
		return groupchat.Workflow{}, err
	}

	plan := groupchat.Workflow{PlanName: doc.PlanName, Description: doc.Description}
	plan.Steps = make([]groupchat.Step, len(doc.Steps))
	for i, s := range doc.Steps {
		plan.Steps[i] = groupchat.Step{
			StepNumber:        s.StepNumber,
			StepName:          s.StepName,
			ExecutorAgent:     s.ExecutorAgent,
			ExecutorPrompt:    s.ExecutorPrompt,
			ReviewerAgent:     s.ReviewerAgent,
			ReviewerPrompt:    s.ReviewerPrompt,
			MaxRevisionRounds: s.MaxRevisionRounds,
		}
	}
	plan.Normalize()
	return plan, nil
}

// ExecuteWorkflow walks plan's steps sequentially (§4.D.2 phase 2),
// substituting placeholders, running the executor/reviewer revision loop,
// and accumulating step_N_result values for later steps. A plan with zero
// steps returns immediately with an empty, accepted result (§8 boundary
// behavior).
func (e *Engine) ExecuteWorkflow(ctx context.Context, plan groupchat.Workflow, userRequest string, onMessage func(groupchat.Message), onEvent func(groupchat.Event)) (WorkflowResult, error) {
	if onMessage == nil {
		onMessage = func(groupchat.Message) {}
	}
	if onEvent == nil {
		onEvent = func(groupchat.Event) {}
	}

	result := WorkflowResult{Plan: plan}
	if len(plan.Steps) == 0 {
		onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})
		return result, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	stepResults := make(map[int]string, len(plan.Steps))

	group.Go(func() error {
		for _, step := range plan.Steps {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			accepted, err := e.runWorkflowStep(gctx, step, userRequest, stepResults, onMessage, onEvent)
			if err != nil {
				onEvent(groupchat.Event{Tag: groupchat.EventError, Agent: step.ExecutorAgent, Content: err.Error()})
				return err
			}
			stepResults[step.StepNumber] = accepted
			result.Steps = append(result.Steps, StepResult{StepNumber: step.StepNumber, StepName: step.StepName, Result: accepted})
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return result, err
	}

	onEvent(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})
	return result, nil
}

func (e *Engine) runWorkflowStep(ctx context.Context, step groupchat.Step, userRequest string, stepResults map[int]string, onMessage func(groupchat.Message), onEvent func(groupchat.Event)) (string, error) {
	executor, ok := FindWorkerByName(e.Workers, step.ExecutorAgent)
	if !ok {
		return "", groupchat.NewError("engine", "ExecuteWorkflow", fmt.Sprintf("unknown executor_agent %q in step %d", step.ExecutorAgent, step.StepNumber), nil)
	}
	executorLoop, err := e.loopFor(executor)
	if err != nil {
		return "", err
	}

	executorPrompt := renderExecutorPrompt(step, userRequest, stepResults)
	result, err := executorLoop.Execute(ctx, executorPrompt, nil, onEvent)
	if err != nil {
		return "", err
	}
	onMessage(groupchat.Message{Role: groupchat.RoleAssistant, AgentName: executor.Name, Content: result,
		Metadata: map[string]any{"step": step.StepNumber, "step_name": step.StepName}})

	if !step.HasReviewer() {
		return result, nil
	}

	reviewer, ok := FindWorkerByName(e.Workers, step.ReviewerAgent)
	if !ok {
		// Reviewer is best-effort; an unresolvable reviewer is treated the
		// same as a hard reviewer-call error — accept as-is (§4.D.2 failure policy).
		return result, nil
	}
	reviewerLoop, err := e.loopFor(reviewer)
	if err != nil {
		return result, nil
	}

	rounds := 0
	for {
		reviewPrompt := groupchat.SubstituteReviewerPrompt(step.ReviewerPrompt, result)
		verdict, err := reviewerLoop.Execute(ctx, reviewPrompt, nil, onEvent)
		if err != nil {
			// A hard reviewer error is treated as APPROVED with a warning;
			// the reviewer is best-effort (§4.D.2 failure policy).
			onMessage(groupchat.Message{Role: groupchat.RoleSystem, Content: fmt.Sprintf("Warning: reviewer %q failed, accepting step %d as-is: %v", reviewer.Name, step.StepNumber, err)})
			return result, nil
		}

		trimmed := strings.TrimSpace(verdict)
		onMessage(groupchat.Message{Role: groupchat.RoleAssistant, AgentName: reviewer.Name, Content: verdict,
			Metadata: map[string]any{"step": step.StepNumber, "reviews_step": step.StepNumber}})

		if strings.HasPrefix(trimmed, "APPROVED") {
			return result, nil
		}

		reason := extractRejectionReason(trimmed)
		if rounds >= step.MaxRevisionRounds {
			onMessage(groupchat.Message{Role: groupchat.RoleSystem, Content: fmt.Sprintf("Revision cap (%d) reached for step %d; accepting latest output.", step.MaxRevisionRounds, step.StepNumber)})
			return result, nil
		}

		rounds++
		revisionPrompt := executorPrompt + "\n\nReviewer feedback (revision " + strconv.Itoa(rounds) + "): " + reason
		result, err = executorLoop.Execute(ctx, revisionPrompt, nil, onEvent)
		if err != nil {
			return "", err
		}
		onMessage(groupchat.Message{Role: groupchat.RoleAssistant, AgentName: executor.Name, Content: result,
			Metadata: map[string]any{"step": step.StepNumber, "step_name": step.StepName, "revision": rounds}})
	}
}

func renderExecutorPrompt(step groupchat.Step, userRequest string, stepResults map[int]string) string {
	return groupchat.SubstituteExecutorPrompt(step.ExecutorPrompt, userRequest, stepResults)
}

// extractRejectionReason returns the trimmed verdict with a leading
// "REJECTED" and an optional ":" removed; if nothing remains, it returns the
// whole trimmed verdict (§4.D.2).
func extractRejectionReason(trimmed string) string {
	const prefix = "REJECTED"
	rest := strings.TrimPrefix(trimmed, prefix)
	rest = strings.TrimPrefix(rest, ":")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return trimmed
	}
	return rest
}
