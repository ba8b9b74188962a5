// Package eventstream implements the event fan-out half of component E: a
// per-turn queue decoupling the execution engine from an HTTP/SSE
// consumer, and the chi routes that expose it.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meshcrew/groupchat/groupchat"
)

// FrameTimeout is how long a consumer waits for the next frame before the
// stream is considered stalled (§5 "Stream reads time out at 300s").
const FrameTimeout = 300 * time.Second

// Turn is a single producer/consumer event pump for one HTTP turn. The
// queue is unbounded by default (§4.E: "producers are model-rate-limited");
// NewTurn with a bound > 0 switches it to a blocking bounded channel instead.
type Turn struct {
	events chan groupchat.Event
	done   chan struct{}
}

// NewTurn constructs a Turn. bound <= 0 means unbounded (a large buffer
// standing in for an unbounded channel, since Go channels are not truly
// unbounded — producers never block in practice at this capacity).
func NewTurn(bound int) *Turn {
	capacity := bound
	if capacity <= 0 {
		capacity = 4096
	}
	return &Turn{
		events: make(chan groupchat.Event, capacity),
		done:   make(chan struct{}),
	}
}

// Emit is the producer side: it is passed directly as an engine.Step /
// toolruntime.Loop onEvent callback. It never drops events — a bounded
// Turn blocks the caller instead (§4.E "must then block producers, not
// drop events"). It is a no-op once the Turn has been closed by the
// consumer disconnecting.
func (t *Turn) Emit(event groupchat.Event) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.events <- event:
	case <-t.done:
	}
}

// Close signals the consumer side is gone; further Emit calls become
// no-ops, which is how a cancelled producer's next enqueue attempt
// observes the disconnect (§5 "Cancellation").
func (t *Turn) Close() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// Done reports whether the consumer has disconnected.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Events exposes the raw event channel for a consumer that wants to drain
// a turn itself rather than go through WriteSSE (e.g. a buffered,
// non-streaming JSON endpoint).
func (t *Turn) Events() <-chan groupchat.Event {
	return t.events
}

// WriteSSE drains events onto w as `event: <tag>\ndata: <json>\n\n` frames
// until a finish/error event or ctx is cancelled, flushing after every
// frame. A frame that doesn't arrive within FrameTimeout ends the stream
// with a synthesized error frame.
func WriteSSE(ctx context.Context, w http.ResponseWriter, turn *Turn) error {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	timer := time.NewTimer(FrameTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			turn.Close()
			return ctx.Err()
		case <-timer.C:
			writeFrame(w, groupchat.Event{Tag: groupchat.EventError, Content: "stream timed out waiting for the next event"})
			if flusher != nil {
				flusher.Flush()
			}
			turn.Close()
			return fmt.Errorf("eventstream: frame timeout after %s", FrameTimeout)
		case event, ok := <-turn.events:
			if !ok {
				writeFrame(w, groupchat.Event{Tag: groupchat.EventFinish, Status: groupchat.StatusFinish})
				if flusher != nil {
					flusher.Flush()
				}
				return nil
			}
			writeFrame(w, event)
			if flusher != nil {
				flusher.Flush()
			}
			if event.Tag == groupchat.EventFinish || event.Tag == groupchat.EventError {
				return nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(FrameTimeout)
		}
	}
}

func writeFrame(w io.Writer, event groupchat.Event) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Tag, payload)
}

// Router mounts the streaming and non-streaming turn endpoints (§6).
// Handler is supplied by the caller (the cmd/groupchatd server) since it
// alone knows how to load a group, build an Engine, and run one Step.
type Router struct {
	mux *chi.Mux
}

// NewRouter builds a Router with the wire-protocol endpoints mounted: the
// two iterative-engine endpoints (§6) plus /chat/workflow, which drives the
// workflow engine (§4.D.2) to completion and returns the same buffered
// shape as /chat/turn.
func NewRouter(streamHandler, turnHandler, workflowHandler http.HandlerFunc) *Router {
	mux := chi.NewRouter()
	mux.Post("/chat/stream", streamHandler)
	mux.Post("/chat/turn", turnHandler)
	mux.Post("/chat/workflow", workflowHandler)
	return &Router{mux: mux}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
