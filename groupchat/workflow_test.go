package groupchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflow_NormalizeClampsMaxRevisionRounds(t *testing.T) {
	w := &Workflow{Steps: []Step{
		{MaxRevisionRounds: -1},
		{MaxRevisionRounds: 99},
		{MaxRevisionRounds: 2},
	}}
	w.Normalize()

	assert.Equal(t, 0, w.Steps[0].MaxRevisionRounds)
	assert.Equal(t, MaxRevisionRounds, w.Steps[1].MaxRevisionRounds)
	assert.Equal(t, 2, w.Steps[2].MaxRevisionRounds)
}

func TestStep_HasReviewer(t *testing.T) {
	assert.True(t, (&Step{ReviewerAgent: "Reviewer"}).HasReviewer())
	assert.False(t, (&Step{ReviewerAgent: "  "}).HasReviewer())
	assert.False(t, (&Step{}).HasReviewer())
}

func TestSubstituteExecutorPrompt(t *testing.T) {
	out := SubstituteExecutorPrompt(
		"do {user_input} using {step_1_result} and {step_2_result}",
		"the task",
		map[int]string{1: "result-one"},
	)
	assert.Equal(t, "do the task using result-one and ", out)
}

func TestSubstituteReviewerPrompt(t *testing.T) {
	out := SubstituteReviewerPrompt("review: {step_result}", "draft text")
	assert.Equal(t, "review: draft text", out)
}

func TestWorkflowJSONSchema_IsNonNil(t *testing.T) {
	schema := WorkflowJSONSchema()
	assert.NotNil(t, schema)
}
