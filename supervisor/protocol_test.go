package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcrew/groupchat/groupchat"
	"github.com/meshcrew/groupchat/providers"
)

// fakeGateway returns a fixed reply regardless of the messages it is given.
type fakeGateway struct {
	reply string
	err   error
}

func (f *fakeGateway) Generate(messages []providers.Message, tools []providers.ToolDefinition) (string, []providers.ToolCall, int, error) {
	return f.reply, nil, 0, f.err
}

func (f *fakeGateway) GenerateStreaming(messages []providers.Message, tools []providers.ToolDefinition) (<-chan providers.StreamChunk, error) {
	ch := make(chan providers.StreamChunk)
	close(ch)
	return ch, f.err
}

func (f *fakeGateway) GetModelName() string       { return "fake" }
func (f *fakeGateway) GetMaxTokens() int          { return 4096 }
func (f *fakeGateway) GetTemperature() float64    { return 0 }
func (f *fakeGateway) Close() error               { return nil }

func TestInitialize_HappyPath(t *testing.T) {
	gw := &fakeGateway{reply: `{"goal":"build X","deliverables":"file Y","process":["W1 drafts","W2 reviews"],"explanation":"..."}`}
	roster := []RosterEntry{{Name: "W1"}, {Name: "W2"}}

	plan, msg, event, err := Initialize(nil, gw, "you are the supervisor", roster, "Plan and build X.")
	require.NoError(t, err)

	assert.Equal(t, "build X", plan.Goal)
	assert.Equal(t, []string{"W1 drafts", "W2 reviews"}, plan.Process)
	assert.True(t, msg.IsPlan)
	require.NotNil(t, msg.PlanData)
	assert.Equal(t, "build X", msg.PlanData.Goal)
	assert.Equal(t, groupchat.EventPlan, event.Tag)
}

func TestDecide_UnknownAgentScenario(t *testing.T) {
	gw := &fakeGateway{reply: `{"next_agent":"Nobody","instruction":"do the thing","status":"CONTINUE"}`}
	roster := []RosterEntry{{Name: "W1"}}
	plan := groupchat.PlanSnapshot{Goal: "g", Deliverables: "d", Process: []string{"a"}}

	decision, err := Decide(nil, gw, "you are the supervisor", roster, plan, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "Nobody", decision.NextAgent)
	assert.Equal(t, "CONTINUE", decision.Status)
}

func TestDecide_PropagatesGatewayError(t *testing.T) {
	gw := &fakeGateway{err: assertErr{"boom"}}
	plan := groupchat.PlanSnapshot{Goal: "g"}

	_, err := Decide(nil, gw, "prompt", nil, plan, 0, nil)
	assert.Error(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestGenerateWorkflow_HappyPath(t *testing.T) {
	gw := &fakeGateway{reply: `{"plan_name":"Ship It","description":"build and review",
		"workflow":[{"step":1,"step_name":"draft","executor_agent":"W1","executor_prompt":"draft it"}]}`}
	roster := []RosterEntry{{Name: "W1"}}

	doc, err := GenerateWorkflow(nil, gw, "you are the supervisor", roster, "build X")
	require.NoError(t, err)
	assert.Equal(t, "Ship It", doc.PlanName)
	require.Len(t, doc.Steps, 1)
	assert.Equal(t, "W1", doc.Steps[0].ExecutorAgent)
}

func TestGenerateWorkflow_UnparsableReplyFallsBackToPlaceholderPlan(t *testing.T) {
	gw := &fakeGateway{reply: "not json at all"}

	doc, err := GenerateWorkflow(nil, gw, "prompt", nil, "build X")
	require.NoError(t, err)
	assert.Equal(t, "Fallback Plan", doc.PlanName)
}

func TestGenerateWorkflow_PropagatesGatewayError(t *testing.T) {
	gw := &fakeGateway{err: assertErr{"boom"}}

	_, err := GenerateWorkflow(nil, gw, "prompt", nil, "build X")
	assert.Error(t, err)
}
