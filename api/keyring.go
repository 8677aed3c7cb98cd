package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// KeyPrefix starts every API key issued by KeyRing.Issue.
const KeyPrefix = "tk_live_"

// KeyRing maps API keys to principals. Only SHA-256 digests are kept.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]keyEntry
}

type keyEntry struct {
	id        id.ID
	principal types.Principal
}

// NewKeyRing builds a key ring from digest to principal pairs, as loaded
// from configuration.
func NewKeyRing(digests map[string]string) *KeyRing {
	kr := &KeyRing{keys: make(map[string]keyEntry, len(digests))}
	for digest, principal := range digests {
		kr.Add(digest, types.NewPrincipal(principal))
	}
	return kr
}

// Digest returns the lowercase hex SHA-256 of key.
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Add registers a digest for principal and returns the key ID.
func (k *KeyRing) Add(digest string, principal types.Principal) id.ID {
	keyID := id.NewAPIKeyID()
	k.mu.Lock()
	k.keys[strings.ToLower(digest)] = keyEntry{id: keyID, principal: principal}
	k.mu.Unlock()
	return keyID
}

// Issue generates a random key for principal. The raw key is returned once
// and never stored.
func (k *KeyRing) Issue(principal types.Principal) (string, id.ID, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", id.Nil, fmt.Errorf("api: generate key: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(buf)
	return raw, k.Add(Digest(raw), principal), nil
}

// Revoke removes the key with the given ID.
func (k *KeyRing) Revoke(keyID id.ID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for digest, e := range k.keys {
		if e.id.String() == keyID.String() {
			delete(k.keys, digest)
			return true
		}
	}
	return false
}

// Lookup resolves a raw key to its principal.
func (k *KeyRing) Lookup(raw string) (types.Principal, bool) {
	digest := Digest(raw)

	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.keys[digest]
	return e.principal, ok
}

// Len returns the number of registered keys.
func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}
