package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsMonotonicWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	gen := NewGeneratorWithEntropy(bytes.NewReader(bytes.Repeat([]byte{7}, 1024)), func() time.Time { return at })

	prev := gen.Generate()
	for range 50 {
		next := gen.Generate()
		require.Equal(t, 1, next.Compare(prev))
		prev = next
	}
}

func TestNewEventID(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	id := NewEventID()

	prefix, raw, ok := strings.Cut(id.String(), "_")
	require.True(t, ok)
	assert.Equal(t, EventPrefix, prefix)
	assert.Len(t, raw, 26)
	assert.True(t, IsValid(raw))

	ts, err := id.Time()
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
}

func TestEventIDTimeRejectsGarbage(t *testing.T) {
	_, err := EventID("nope").Time()
	assert.Error(t, err)

	_, err = EventID("evt_nope").Time()
	assert.Error(t, err)
}

func TestConcurrentGenerationIsUnique(t *testing.T) {
	gen := NewGenerator()
	const n = 200

	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.GenerateWithPrefix("evt")
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
