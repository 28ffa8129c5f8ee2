// Package dedupe fingerprints normalized transactions and tracks which
// fingerprints were already seen.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const sep = "\x1f"

// Hash returns the content hash of a transaction. date must be ISO
// (YYYY-MM-DD), description trimmed; the sign of amount is ignored.
// The same canonicalization is used for batch and storage dedupe.
func Hash(userID, date, description string, amount decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(userID)
	b.WriteString(sep)
	b.WriteString(date)
	b.WriteString(sep)
	b.WriteString(strings.TrimSpace(description))
	b.WriteString(sep)
	b.WriteString(amount.Abs().StringFixed(2))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Set is a concurrency-safe set of seen hashes.
type Set struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSet returns an empty set sized for n hashes.
func NewSet(n int) *Set {
	return &Set{seen: make(map[string]struct{}, n)}
}

// Add records hash and reports whether it was new.
func (s *Set) Add(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[hash]; ok {
		return false
	}
	s.seen[hash] = struct{}{}
	return true
}

// Len returns the number of distinct hashes.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Index answers which hashes a user already has in storage.
type Index interface {
	ExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error)
}

// MemoryIndex is an in-process Index keyed by user.
type MemoryIndex struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byUser: make(map[string]map[string]struct{})}
}

func (m *MemoryIndex) ExistingHashes(_ context.Context, userID string, hashes []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing := make(map[string]bool)
	stored := m.byUser[userID]
	for _, h := range hashes {
		if _, ok := stored[h]; ok {
			existing[h] = true
		}
	}
	return existing, nil
}

// Remember stores hashes for userID and returns how many were new.
func (m *MemoryIndex) Remember(userID string, hashes ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byUser[userID]
	if !ok {
		stored = make(map[string]struct{}, len(hashes))
		m.byUser[userID] = stored
	}

	added := 0
	for _, h := range hashes {
		if _, ok := stored[h]; !ok {
			stored[h] = struct{}{}
			added++
		}
	}
	return added
}
