package journal

import (
	"context"

	"github.com/xraph/tally/types"
)

// Store reads the journal. Entries are written through store.Mutation.
type Store interface {
	ListEntries(ctx context.Context, appID string, opts ListOpts) ([]*Entry, error)
}

// ListOpts filters entries. Results are ordered by ascending sequence.
type ListOpts struct {
	Principal types.Principal
	Kind      Kind
	Limit     int
	Offset    int
}

// Matches reports whether e passes the filters in opts.
func (o ListOpts) Matches(e *Entry) bool {
	if o.Principal != "" && e.Principal != o.Principal {
		return false
	}
	if o.Kind != "" && e.Kind != o.Kind {
		return false
	}
	return true
}
