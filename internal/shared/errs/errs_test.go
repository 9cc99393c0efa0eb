package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Wrap(errors.New("broken pipe"), CategoryCollaborator, "trim", "supervisor call failed")
	assert.Equal(t, "trim: supervisor call failed: broken pipe", err.Error())
	assert.Equal(t, "not found", ErrNotFound.Error())
}

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same category and message", New(CategoryLookupMiss, "kill", "not found"), ErrNotFound, true},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(CategoryStaleReference, "op", "application is dead")), ErrDead, true},
		{"different message", New(CategoryLookupMiss, "op", "gone"), ErrNotFound, false},
		{"different category", New(CategoryInvariant, "op", "not found"), ErrNotFound, false},
		{"cause chain", Wrap(ErrProcessGone, CategoryCollaborator, "gc", "request failed"), ErrProcessGone, true},
		{"plain error", errors.New("not found"), ErrNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryCollaborator, CategoryOf(fmt.Errorf("x: %w", ErrProcessGone)))
	assert.Equal(t, Category(""), CategoryOf(errors.New("plain")))
	assert.True(t, IsLookupMiss(Wrap(ErrNotFound, CategoryLookupMiss, "remove", "not found")))
	assert.False(t, IsLookupMiss(nil))
}

func TestWithContext(t *testing.T) {
	err := New(CategoryInvariant, "validate", "invalid pid").With("pid", -1).With("source", "report")
	assert.Equal(t, map[string]any{"pid": -1, "source": "report"}, err.Context)
}
