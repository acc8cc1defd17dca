// Package ident generates time-ordered unique identifiers for recipes and
// day events.
//
// Identifiers are 128-bit values rendered in the canonical 8-4-4-4-12 hex
// form. The most significant 64 bits are (epochMilliseconds << 20) | counter,
// where the 20-bit counter resets whenever the millisecond advances, so the
// unsigned MSB word sorts identifiers chronologically by construction. The
// least significant 64 bits are cryptographically random, which keeps
// identifiers globally unique even across processes sharing a clock.
package ident

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// counterMask keeps the per-millisecond sequence within 20 bits
// (1,048,575 identifiers per millisecond before wraparound).
const counterMask = 0xFFFFF

// timestampShift positions the millisecond timestamp above the counter.
const timestampShift = 20

// Generator issues time-ordered identifiers. State is scoped to the instance,
// not the process, so independent generators (one per test, one per adapter)
// never contaminate each other's sequences.
//
// The counter and last-seen timestamp are not persisted; a process restart
// resets them, which is safe because wall-clock time has advanced.
//
// Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64

	// now is swapped out by tests to pin the clock.
	now func() int64
}

// New returns a Generator backed by the system clock.
func New() *Generator {
	return &Generator{now: func() int64 { return time.Now().UnixMilli() }}
}

// NewWithClock returns a Generator that reads the current epoch milliseconds
// from now. Used by tests to exercise same-millisecond sequencing.
func NewWithClock(now func() int64) *Generator {
	return &Generator{now: now}
}

// Generate returns a new identifier in canonical 8-4-4-4-12 form.
func (g *Generator) Generate() string {
	msb := g.nextMSB()
	lsb := randomUint64()

	msbHex := fmt.Sprintf("%016x", msb)
	lsbHex := fmt.Sprintf("%016x", lsb)

	return strings.Join([]string{
		msbHex[0:8],
		msbHex[8:12],
		msbHex[12:16],
		lsbHex[0:4],
		lsbHex[4:16],
	}, "-")
}

// nextMSB advances the generator state and returns the timestamp+counter word.
func (g *Generator) nextMSB() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now == g.lastMs {
		g.seq = (g.seq + 1) & counterMask
	} else {
		g.seq = 0
		g.lastMs = now
	}

	return uint64(now)<<timestampShift | g.seq
}

// Dissect parses an identifier produced by Generate and recovers the epoch
// milliseconds at which it was issued. The input must be a canonical
// 8-4-4-4-12 hex string; anything else is rejected.
func Dissect(id string) (issuedAtEpochMs int64, err error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return 0, fmt.Errorf("dissect %q: %w", id, err)
	}
	msb := binary.BigEndian.Uint64(parsed[0:8])
	return int64(msb >> timestampShift), nil
}

// MSB returns the unsigned most-significant word of an identifier, which is
// its chronological sort key. Used by callers ordering identifiers without
// caring about the embedded timestamp.
func MSB(id string) (uint64, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", id, err)
	}
	return binary.BigEndian.Uint64(parsed[0:8]), nil
}

func randomUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// there is no meaningful recovery.
		panic(fmt.Sprintf("ident: reading random bytes: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}
