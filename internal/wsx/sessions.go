package wsx

import (
	"context"
	"encoding/json"

	. "github.com/huanluu/claude-history-server/internal/logging"

	"github.com/huanluu/claude-history-server/internal/executor"
	"github.com/huanluu/claude-history-server/internal/sessionstore"
)

func (c *client) handleSessionStart(ctx context.Context, env inEnvelope, resume bool) {
	var payload sessionStartPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		c.sendOrDrop(outEnvelope{Type: typeSessionError, ID: env.ID, Payload: sessionErrorPayload{Error: "malformed session.start payload"}})
		return
	}
	if payload.SessionID == "" {
		c.sendOrDrop(outEnvelope{Type: typeSessionError, ID: env.ID, Payload: sessionErrorPayload{Error: "sessionId is required"}})
		return
	}

	result := c.deps.Validator.Validate(payload.WorkingDir)
	if !result.Allowed {
		c.sendOrDrop(outEnvelope{Type: typeSessionError, ID: env.ID, Payload: sessionErrorPayload{SessionID: payload.SessionID, Error: result.Error}})
		return
	}

	ex := executor.New(payload.SessionID)
	opts := executor.StartOpts{Prompt: payload.Prompt, WorkingDir: result.ResolvedPath}
	if resume {
		opts.ResumeSessionID = payload.ResumeSessionID
	}
	if err := ex.Start(ctx, opts); err != nil {
		c.sendOrDrop(outEnvelope{Type: typeSessionError, ID: env.ID, Payload: sessionErrorPayload{SessionID: payload.SessionID, Error: err.Error()}})
		return
	}

	c.deps.Sessions.Create(sessionstore.Entry{SessionID: payload.SessionID, ClientID: c.id, Executor: ex})

	go c.streamExecutorEvents(payload.SessionID, ex)
}

// streamExecutorEvents forwards one executor's event stream to the client in
// the order the child process produced them. session.complete is always the
// last message for this session.
func (c *client) streamExecutorEvents(sessionID string, ex *executor.Executor) {
	for event := range ex.Events() {
		switch event.Type {
		case executor.EventMessage:
			c.sendOrDrop(outEnvelope{Type: typeSessionOutput, Payload: sessionOutputPayload{SessionID: sessionID, Message: event.Message}})
		case executor.EventError:
			c.sendOrDrop(outEnvelope{Type: typeSessionError, Payload: sessionErrorPayload{SessionID: sessionID, Error: event.Text}})
		case executor.EventComplete:
			c.sendOrDrop(outEnvelope{Type: typeSessionDone, Payload: sessionCompletePayload{SessionID: sessionID, ExitCode: event.ExitCode}})
			c.deps.Sessions.Remove(sessionID)
		}
	}
}

func (c *client) handleSessionCancel(env inEnvelope) {
	var payload sessionCancelPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}
	entry, ok := c.deps.Sessions.Get(payload.SessionID)
	if !ok {
		L_warn("wsx: session.cancel for unknown session", "sessionId", payload.SessionID)
		return
	}
	entry.Executor.Cancel()
}
