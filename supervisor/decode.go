package supervisor

import (
	"github.com/mitchellh/mapstructure"
)

// PlanInit is the decoded shape of the Initialization protocol's JSON
// response (§4.C).
type PlanInit struct {
	Goal         string   `mapstructure:"goal"`
	Deliverables string   `mapstructure:"deliverables"`
	Process      []string `mapstructure:"process"`
	Explanation  string   `mapstructure:"explanation"`
}

// ExecutionDecision is the decoded shape of the Execution protocol's JSON
// response (§4.C).
type ExecutionDecision struct {
	NextAgent     string   `mapstructure:"next_agent"`
	Instruction   string   `mapstructure:"instruction"`
	UpdateProcess []string `mapstructure:"update_process"`
	Status        string   `mapstructure:"status"`
}

// WorkflowDoc is the decoded shape of a workflow plan document (§3, §6).
type WorkflowDoc struct {
	PlanName    string       `mapstructure:"plan_name"`
	Description string       `mapstructure:"description"`
	Steps       []WorkflowStepDoc `mapstructure:"workflow"`
}

// WorkflowStepDoc is one Step within a decoded WorkflowDoc.
type WorkflowStepDoc struct {
	StepNumber        int    `mapstructure:"step"`
	StepName          string `mapstructure:"step_name"`
	ExecutorAgent     string `mapstructure:"executor_agent"`
	ExecutorPrompt    string `mapstructure:"executor_prompt"`
	ReviewerAgent     string `mapstructure:"reviewer_agent"`
	ReviewerPrompt    string `mapstructure:"reviewer_prompt"`
	MaxRevisionRounds int    `mapstructure:"max_revision_rounds"`
}

func decodeInto(src map[string]any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(src)
}

// DecodePlanInit decodes a raw extracted map into a PlanInit, after
// normalizing its top-level keys to lower-case (the source's
// `{k.lower(): v ...}` step).
func DecodePlanInit(raw map[string]any) (PlanInit, error) {
	var out PlanInit
	err := decodeInto(lowerKeys(raw), &out)
	return out, err
}

// DecodeExecutionDecision decodes a raw extracted map into an
// ExecutionDecision.
func DecodeExecutionDecision(raw map[string]any) (ExecutionDecision, error) {
	var out ExecutionDecision
	err := decodeInto(lowerKeys(raw), &out)
	return out, err
}

// DecodeWorkflowDoc decodes a raw extracted map into a WorkflowDoc.
func DecodeWorkflowDoc(raw map[string]any) (WorkflowDoc, error) {
	var out WorkflowDoc
	err := decodeInto(lowerKeys(raw), &out)
	return out, err
}
