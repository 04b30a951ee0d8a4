// Package idgen mints sortable idempotency tokens.
package idgen

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	entropyMu sync.Mutex
)

// NewULID returns a ULID stamped with t.
func NewULID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Token returns prefix-<ulid>, or a bare ULID when prefix is empty.
func Token(prefix string, t time.Time) string {
	id := NewULID(t)
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// AutopickToken is the token the orchestrator submits timed-out picks with.
func AutopickToken(t time.Time) string {
	return Token("autopick", t)
}
