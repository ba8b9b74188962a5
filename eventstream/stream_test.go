package eventstream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcrew/groupchat/groupchat"
)

func TestTurn_EmitAndDrain(t *testing.T) {
	turn := NewTurn(4)
	turn.Emit(groupchat.Event{Tag: groupchat.EventThinking})
	turn.Emit(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})

	first := <-turn.Events()
	second := <-turn.Events()
	assert.Equal(t, groupchat.EventThinking, first.Tag)
	assert.Equal(t, groupchat.EventFinish, second.Tag)
}

func TestTurn_EmitIsANoOpAfterClose(t *testing.T) {
	turn := NewTurn(1)
	turn.Close()

	done := make(chan struct{})
	go func() {
		// once the one-slot buffer is full, an Emit that ignored Done would
		// block forever here (§5 cancellation).
		turn.Emit(groupchat.Event{Tag: groupchat.EventThinking})
		turn.Emit(groupchat.Event{Tag: groupchat.EventThinking})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked past turn.Close()")
	}
}

func TestTurn_CloseIsIdempotent(t *testing.T) {
	turn := NewTurn(1)
	assert.NotPanics(t, func() {
		turn.Close()
		turn.Close()
	})
}

func TestWriteSSE_StopsAtFinishEvent(t *testing.T) {
	turn := NewTurn(4)
	turn.Emit(groupchat.Event{Tag: groupchat.EventThinking, Content: "working"})
	turn.Emit(groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})

	rec := httptest.NewRecorder()
	err := WriteSSE(context.Background(), rec, turn)
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, "event: thinking")
	assert.Contains(t, body, "event: finish")
	assert.True(t, strings.Index(body, "event: thinking") < strings.Index(body, "event: finish"))
}

func TestWriteSSE_CancellationClosesTheTurn(t *testing.T) {
	turn := NewTurn(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	err := WriteSSE(ctx, rec, turn)
	assert.Error(t, err)

	select {
	case <-turn.Done():
	default:
		t.Fatal("WriteSSE did not close the turn on cancellation")
	}
}
