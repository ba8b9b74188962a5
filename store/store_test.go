package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcrew/groupchat/groupchat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleUser, Content: "hello", Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleAssistant, AgentName: "W1", Content: "hi there", Timestamp: time.Now()})
	require.NoError(t, err)

	messages, err := s.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, "W1", messages[1].AgentName)
	assert.NotEmpty(t, messages[0].ID)
}

func TestStore_ListMessagesLimitKeepsMostRecentInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleUser, Content: string(rune('a' + i)), Timestamp: time.Now()})
		require.NoError(t, err)
	}

	messages, err := s.ListMessages(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "d", messages[0].Content)
	assert.Equal(t, "e", messages[1].Content)
}

func TestStore_MessagesAreScopedPerGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleUser, Content: "for g1", Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "g2", groupchat.Message{Role: groupchat.RoleUser, Content: "for g2", Timestamp: time.Now()})
	require.NoError(t, err)

	messages, err := s.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "for g1", messages[0].Content)
}

func TestStore_ClearMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleUser, Content: "hello", Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.ClearMessages(ctx, "g1"))

	messages, err := s.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_PlanDataRoundTripsThroughJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := &groupchat.PlanSnapshot{Goal: "build X", Deliverables: "file Y", Process: []string{"a", "b"}}
	_, err := s.AppendMessage(ctx, "g1", groupchat.Message{Role: groupchat.RoleAssistant, IsPlan: true, PlanData: plan, Timestamp: time.Now()})
	require.NoError(t, err)

	messages, err := s.ListMessages(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.NotNil(t, messages[0].PlanData)
	assert.Equal(t, "build X", messages[0].PlanData.Goal)
	assert.Equal(t, []string{"a", "b"}, messages[0].PlanData.Process)
}

func TestStore_LoadPlanStateReturnsFreshStateWhenUnset(t *testing.T) {
	s := newTestStore(t)
	plan, err := s.LoadPlanState(context.Background(), "unknown-group")
	require.NoError(t, err)
	assert.False(t, plan.IsInitialized())
}

func TestStore_SaveAndLoadPlanStateRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := &groupchat.PlanState{PlanInitialized: true, Goal: "g", Deliverables: "d", Process: []string{"s1", "s2"}, CurrentStepIndex: 1}
	require.NoError(t, s.SavePlanState(ctx, "g1", plan))

	loaded, err := s.LoadPlanState(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, loaded.IsInitialized())
	assert.Equal(t, plan.Snapshot(), loaded.Snapshot())
}

func TestStore_SavePlanStateUpsertsOnSecondCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := &groupchat.PlanState{PlanInitialized: true, Goal: "g", Process: []string{"s1"}, CurrentStepIndex: 0}
	require.NoError(t, s.SavePlanState(ctx, "g1", plan))

	plan.AdvanceStep(nil)
	require.NoError(t, s.SavePlanState(ctx, "g1", plan))

	loaded, err := s.LoadPlanState(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentIndex())
}
