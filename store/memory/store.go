// Package memory provides an in-memory store for tests and single-process
// deployments. Apply is atomic with respect to every other call.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/journal"
	"github.com/xraph/tally/state"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// State storage keyed by app ID
	states map[string]*state.State

	// Account storage keyed by app ID, then principal
	accounts map[string]map[types.Principal]*account.Account

	// Journal storage keyed by app ID, in sequence order
	entries map[string][]*journal.Entry
}

func New() *Store {
	return &Store{
		states:   make(map[string]*state.State),
		accounts: make(map[string]map[types.Principal]*account.Account),
		entries:  make(map[string][]*journal.Entry),
	}
}

// State Store implementation
func (s *Store) GetState(_ context.Context, appID string) (*state.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[appID]; ok {
		return st.Clone(), nil
	}
	return nil, tally.ErrStateNotFound
}

func (s *Store) CreateState(_ context.Context, st *state.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[st.AppID]; exists {
		return tally.ErrAlreadyExists
	}
	s.states[st.AppID] = st.Clone()
	return nil
}

// Account Store implementation
func (s *Store) GetAccount(_ context.Context, appID string, principal types.Principal) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[appID][principal]; ok {
		return a.Clone(), nil
	}
	return nil, tally.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context, appID string, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts[appID]))
	for _, a := range s.accounts[appID] {
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Principal < result[j].Principal })

	start, end := store.Page(len(result), opts.Limit, opts.Offset)
	return result[start:end], nil
}

// Journal Store implementation
func (s *Store) ListEntries(_ context.Context, appID string, opts journal.ListOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*journal.Entry, 0)
	for _, e := range s.entries[appID] {
		if opts.Matches(e) {
			c := *e
			result = append(result, &c)
		}
	}

	start, end := store.Page(len(result), opts.Limit, opts.Offset)
	return result[start:end], nil
}

// Apply writes the whole mutation under a single lock.
func (s *Store) Apply(_ context.Context, m *store.Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[m.State.AppID]
	if !ok {
		return tally.ErrStateNotFound
	}
	if current.Sequence+1 != m.State.Sequence {
		return fmt.Errorf("%w: state for %s is at sequence %d", tally.ErrTransactionFailed, m.State.AppID, current.Sequence)
	}
	s.states[m.State.AppID] = m.State.Clone()

	if m.Account != nil {
		byPrincipal, ok := s.accounts[m.Account.AppID]
		if !ok {
			byPrincipal = make(map[types.Principal]*account.Account)
			s.accounts[m.Account.AppID] = byPrincipal
		}
		byPrincipal[m.Account.Principal] = m.Account.Clone()
	}

	e := *m.Entry
	s.entries[e.AppID] = append(s.entries[e.AppID], &e)
	return nil
}

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
