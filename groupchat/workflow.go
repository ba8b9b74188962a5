package groupchat

import (
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// MaxRevisionRounds is the upper clamp for a Step's MaxRevisionRounds.
const MaxRevisionRounds = 3

// Workflow is a named plan consisting of an ordered sequence of Steps,
// generated up-front by a single supervisor call in workflow mode.
type Workflow struct {
	PlanName    string `json:"plan_name" jsonschema:"required,description=short name for this workflow"`
	Description string `json:"description" jsonschema:"required"`
	Steps       []Step `json:"workflow" jsonschema:"required"`
}

// Step describes one unit of work in a Workflow.
type Step struct {
	StepNumber        int    `json:"step" jsonschema:"required,description=1-based sequential step number"`
	StepName          string `json:"step_name" jsonschema:"required"`
	ExecutorAgent     string `json:"executor_agent" jsonschema:"required,description=must match a group member's name"`
	ExecutorPrompt    string `json:"executor_prompt" jsonschema:"required,description=may reference {user_input} and {step_N_result}"`
	ReviewerAgent     string `json:"reviewer_agent,omitempty"`
	ReviewerPrompt    string `json:"reviewer_prompt,omitempty" jsonschema:"description=may reference {step_result}"`
	MaxRevisionRounds int    `json:"max_revision_rounds"`
}

// Normalize clamps MaxRevisionRounds into [0, MaxRevisionRounds] on ingest
// of the plan — an out-of-range value is clamped, never rejected (§4.D.2).
func (w *Workflow) Normalize() {
	for i := range w.Steps {
		s := &w.Steps[i]
		if s.MaxRevisionRounds < 0 {
			s.MaxRevisionRounds = 0
		}
		if s.MaxRevisionRounds > MaxRevisionRounds {
			s.MaxRevisionRounds = MaxRevisionRounds
		}
	}
}

// HasReviewer reports whether a step names a reviewer agent.
func (s *Step) HasReviewer() bool {
	return strings.TrimSpace(s.ReviewerAgent) != ""
}

// WorkflowJSONSchema renders the Workflow type as a JSON Schema document,
// used to build the structured prompt addendum that instructs the
// supervisor what shape to emit (SPEC_FULL.md supplemented feature 4): the
// instructions are derived from the Go struct and can never drift from it.
// Nothing in this module validates a generated document against the schema.
func WorkflowJSONSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	return reflector.Reflect(&Workflow{})
}

// SubstituteExecutorPrompt fills {user_input} and {step_N_result}
// references in an executor prompt template. A reference to a step that
// has not executed yet substitutes the empty string — placeholder
// substitution never fails the run (§4.D.2).
func SubstituteExecutorPrompt(template, userInput string, stepResults map[int]string) string {
	out := strings.ReplaceAll(template, "{user_input}", userInput)
	for n, result := range stepResults {
		placeholder := "{step_" + strconv.Itoa(n) + "_result}"
		out = strings.ReplaceAll(out, placeholder, result)
	}
	out = stripUnresolvedStepPlaceholders(out)
	return out
}

// SubstituteReviewerPrompt fills {step_result} with the executor's output
// for the step currently under review.
func SubstituteReviewerPrompt(template, stepResult string) string {
	return strings.ReplaceAll(template, "{step_result}", stepResult)
}

func stripUnresolvedStepPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{step_")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		s = s[:start] + s[start+end+1:]
	}
}
