package state

import "context"

// Store persists the ledger state.
type Store interface {
	// GetState returns the state for appID or an error wrapping
	// tally.ErrStateNotFound semantics as defined by the backend.
	GetState(ctx context.Context, appID string) (*State, error)

	// CreateState inserts the initial state. It fails if one already exists.
	CreateState(ctx context.Context, s *State) error
}
