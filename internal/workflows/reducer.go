package workflows

import (
	"github.com/verity-labs/research-orchestrator/internal/session"
)

// Reduce folds one update into the turn's working history. A message whose
// content is the reset token clears everything accumulated so far; any other
// message appends. The rewrite step issues at most one reset per turn,
// immediately followed by the canonical rewritten query, so follow-up steps
// see a self-contained history instead of the raw back-and-forth.
func Reduce(history []session.Message, update session.Message) []session.Message {
	if update.Content == ResetHistoryToken {
		return nil
	}
	return append(history, update)
}

// ReduceAll applies updates in order.
func ReduceAll(history []session.Message, updates ...session.Message) []session.Message {
	for _, u := range updates {
		history = Reduce(history, u)
	}
	return history
}
