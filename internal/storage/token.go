package storage

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// tokenSource mints change tokens. Tokens are ULIDs: time-ordered and
// lexicographically sortable, so "give me changes after token T" is a plain
// string comparison. The monotonic entropy reader keeps tokens minted within
// the same millisecond strictly ordered.
type tokenSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newTokenSource() *tokenSource {
	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &tokenSource{entropy: ulid.Monotonic(seed, 0)}
}

func (t *tokenSource) Next() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), t.entropy).String()
}
