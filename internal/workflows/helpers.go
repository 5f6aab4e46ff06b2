package workflows

import "github.com/google/uuid"

// newTurnID generates the persistence ID for a turn. Only ever called from
// inside a SideEffect so replay stays deterministic.
func newTurnID() string {
	return uuid.New().String()
}
