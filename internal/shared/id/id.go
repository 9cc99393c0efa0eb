// Package id generates sortable identifiers for lifecycle notifications.
//
// IDs are ULIDs with a type prefix ("evt_01J..."). Within one millisecond
// they are strictly increasing, so consumers can order notifications from a
// single daemon by ID alone.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventID identifies one published lifecycle notification
type EventID string

// EventPrefix tags event IDs
const EventPrefix = "evt"

// String implements fmt.Stringer
func (id EventID) String() string { return string(id) }

// Time returns the creation time encoded in the ID
func (id EventID) Time() (time.Time, error) {
	_, raw, ok := strings.Cut(string(id), "_")
	if !ok {
		return time.Time{}, fmt.Errorf("event id %q has no prefix", id)
	}
	return Timestamp(raw)
}

// Generator generates monotonic ULIDs
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator over crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(rand.Reader, time.Now)
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
// and clock, for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     now,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewEventID generates an event ID from the default generator
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

// IsValid checks if a string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
