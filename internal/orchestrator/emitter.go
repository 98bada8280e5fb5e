package orchestrator

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/assistant-engine/internal/model"
)

// Emitter writes one framed event to the client.
type Emitter interface {
	Emit(ev model.StreamEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev model.StreamEvent) error

func (f EmitterFunc) Emit(ev model.StreamEvent) error { return f(ev) }

var errTurnClosed = errors.New("turn already terminated")

// guard enforces the event grammar of a turn: start comes first, at most
// one terminal event follows, and every function_result pairs with the
// function_start before it. A failed write closes the guard.
type guard struct {
	out      Emitter
	started  bool
	closed   bool
	openCall string

	// conversationID is announced when the turn fails before it started.
	conversationID uint
}

func newGuard(out Emitter) *guard {
	return &guard{out: out}
}

func (g *guard) emit(ev model.StreamEvent) error {
	if g.closed {
		return errTurnClosed
	}
	if !g.started && ev.Type != model.EventStart {
		return fmt.Errorf("%s before start", ev.Type)
	}
	switch ev.Type {
	case model.EventStart:
		if g.started {
			return errors.New("turn already started")
		}
		g.started = true
	case model.EventFunctionStart:
		if g.openCall != "" {
			return fmt.Errorf("function_start %q while %q is open", ev.Name, g.openCall)
		}
		g.openCall = ev.Name
	case model.EventFunctionResult:
		if g.openCall != ev.Name {
			return fmt.Errorf("function_result %q without matching function_start", ev.Name)
		}
		g.openCall = ""
	}
	if ev.Terminal() {
		g.closed = true
	}
	if err := g.out.Emit(ev); err != nil {
		g.closed = true
		return fmt.Errorf("emit %s: %w", ev.Type, err)
	}
	return nil
}

// fail emits the error event unless the turn already ended. A turn that
// fails before it started still opens with start.
func (g *guard) fail(message string) {
	if g.closed {
		return
	}
	if !g.started {
		if err := g.emit(model.StreamEvent{Type: model.EventStart, ConversationID: g.conversationID}); err != nil {
			return
		}
	}
	_ = g.emit(model.StreamEvent{Type: model.EventError, Message: message})
}
