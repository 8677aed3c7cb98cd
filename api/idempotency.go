package api

import (
	"sync"
	"time"
)

// Response is a cached HTTP response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// KeyState is the state of an idempotency key.
type KeyState int

const (
	// StateNew means the caller now owns the key and must Complete or Abort it.
	StateNew KeyState = iota
	// StateInFlight means another request holds the key.
	StateInFlight
	// StateDone means a response is cached.
	StateDone
	// StateMismatch means the key was first used for a different request.
	StateMismatch
)

// IdempotencyStore tracks idempotency keys. fingerprint identifies the
// request a key was first used for; a live key presented with another
// fingerprint reports StateMismatch.
type IdempotencyStore interface {
	Begin(key, fingerprint string) (Response, KeyState)
	Complete(key string, r Response)
	Abort(key string)
}

// MemoryIdempotency is an in-process IdempotencyStore whose entries expire
// after a TTL. Expired entries are swept from Begin at most once per TTL.
type MemoryIdempotency struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[string]idemEntry
	lastSweep time.Time
}

type idemEntry struct {
	fingerprint string
	resp        Response
	done        bool
	expireAt    time.Time
}

// NewMemoryIdempotency creates a store keeping responses for ttl.
func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	m := &MemoryIdempotency{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]idemEntry),
	}
	m.lastSweep = m.now()
	return m
}

// Begin implements IdempotencyStore.
func (m *MemoryIdempotency) Begin(key, fingerprint string) (Response, KeyState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.ttl {
		m.sweepLocked(now)
	}

	if e, ok := m.entries[key]; ok && now.Before(e.expireAt) {
		switch {
		case e.fingerprint != fingerprint:
			return Response{}, StateMismatch
		case e.done:
			return e.resp, StateDone
		default:
			return Response{}, StateInFlight
		}
	}

	m.entries[key] = idemEntry{fingerprint: fingerprint, expireAt: now.Add(m.ttl)}
	return Response{}, StateNew
}

// Complete implements IdempotencyStore.
func (m *MemoryIdempotency) Complete(key string, r Response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[key]
	e.resp, e.done, e.expireAt = r, true, m.now().Add(m.ttl)
	m.entries[key] = e
}

// Abort implements IdempotencyStore.
func (m *MemoryIdempotency) Abort(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of tracked keys, expired or not.
func (m *MemoryIdempotency) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryIdempotency) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.now())
}

func (m *MemoryIdempotency) sweepLocked(now time.Time) int {
	m.lastSweep = now
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expireAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}
