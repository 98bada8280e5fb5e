package service

import (
	"context"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
)

// Outcome is the terminal state of one gated call.
type Outcome string

const (
	OutcomeNotFound             Outcome = "not_found"
	OutcomeAlreadyTerminal      Outcome = "already_terminal"
	OutcomeConfirmationRequired Outcome = "confirmation_required"
	OutcomeExecuted             Outcome = "executed"
	OutcomeFailed               Outcome = "failed"
)

// Gate guards irreversible mutations behind an explicit confirmation. It
// holds no per-request state: the caller's confirmed flag and the
// resource's persisted status carry the protocol.
type Gate struct {
	journal Journal
	log     *logger.Logger
}

// NewGate creates a Gate.
func NewGate(journal Journal, log *logger.Logger) *Gate {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Gate{journal: journal, log: log.With("component", "gate")}
}

// GuardedOp describes one gated operation on a target of type T.
type GuardedOp[T any] struct {
	Resource  string
	Operation string
	ID        uint

	// Load fetches the target, returning an apperr NotFound when absent.
	Load func(ctx context.Context) (*T, error)
	// Terminal returns a non-empty message when the target already reached
	// the end state of this operation.
	Terminal func(target *T) string
	// MarkPending, when set, persists the awaiting-confirmation state.
	MarkPending func(ctx context.Context, target *T) error
	// Preview renders the confirmation prompt and its payload.
	Preview func(target *T) (string, map[string]any)
	// Execute performs the mutation.
	Execute func(ctx context.Context, target *T) *model.ActionResult
}

// Guard runs op through the gate. The mutation runs only when confirmed
// is true and the target exists and is not already terminal.
func Guard[T any](ctx context.Context, g *Gate, op GuardedOp[T], confirmed bool) *model.ActionResult {
	target, err := op.Load(ctx)
	if err != nil {
		outcome := OutcomeFailed
		if apperr.Is(err, apperr.CodeNotFound) {
			outcome = OutcomeNotFound
		}
		return g.finish(ctx, op.Resource, op.Operation, op.ID, outcome, model.ActionFailed(op.Resource, err))
	}

	if op.Terminal != nil {
		if msg := op.Terminal(target); msg != "" {
			result := model.ActionFailed(op.Resource, apperr.AlreadyTerminal("%s", msg))
			return g.finish(ctx, op.Resource, op.Operation, op.ID, OutcomeAlreadyTerminal, result)
		}
	}

	if !confirmed {
		if op.MarkPending != nil {
			if err := op.MarkPending(ctx, target); err != nil {
				result := model.ActionFailed(op.Resource, err)
				return g.finish(ctx, op.Resource, op.Operation, op.ID, failedOutcome(result), result)
			}
		}
		msg, payload := op.Preview(target)
		result := model.NewAction(model.ActionConfirmationRequired, op.Resource, msg, payload)
		return g.finish(ctx, op.Resource, op.Operation, op.ID, OutcomeConfirmationRequired, result)
	}

	result := op.Execute(ctx, target)
	outcome := OutcomeExecuted
	if !result.Success() {
		outcome = failedOutcome(result)
	}
	return g.finish(ctx, op.Resource, op.Operation, op.ID, outcome, result)
}

// failedOutcome keeps a lost race on a terminal state distinguishable from
// other failures.
func failedOutcome(r *model.ActionResult) Outcome {
	switch r.Code {
	case apperr.CodeAlreadyTerminal:
		return OutcomeAlreadyTerminal
	case apperr.CodeNotFound:
		return OutcomeNotFound
	}
	return OutcomeFailed
}

func (g *Gate) finish(ctx context.Context, resource, operation string, id uint, outcome Outcome, result *model.ActionResult) *model.ActionResult {
	metrics.RecordConfirmation(resource, operation, string(outcome))
	recordAction(ctx, g.journal, g.log, operation, id, result)
	return result
}
