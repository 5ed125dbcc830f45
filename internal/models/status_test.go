package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportPathIsForwardOnly(t *testing.T) {
	path := []JobStatus{StatusQueued, StatusUploading, StatusParsing, StatusImporting, StatusDone}

	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]),
			"expected %s -> %s to be legal", path[i], path[i+1])
	}

	// No going backwards.
	for i := len(path) - 1; i > 0; i-- {
		assert.False(t, CanTransition(path[i], path[i-1]),
			"expected %s -> %s to be illegal", path[i], path[i-1])
	}
}

func TestBulkDeletePath(t *testing.T) {
	assert.True(t, CanTransition(StatusQueued, StatusPreparing))
	assert.True(t, CanTransition(StatusPreparing, StatusDeleting))
	assert.True(t, CanTransition(StatusDeleting, StatusDone))
	assert.False(t, CanTransition(StatusPreparing, StatusImporting))
	assert.False(t, CanTransition(StatusDeleting, StatusPreparing))
}

func TestAnyNonTerminalStateCanFail(t *testing.T) {
	for _, s := range []JobStatus{StatusQueued, StatusUploading, StatusParsing, StatusImporting, StatusPreparing, StatusDeleting} {
		assert.True(t, CanTransition(s, StatusFailed), "expected %s -> failed to be legal", s)
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	for _, terminal := range []JobStatus{StatusDone, StatusFailed} {
		assert.True(t, terminal.Terminal())
		for _, to := range []JobStatus{StatusQueued, StatusParsing, StatusImporting, StatusDeleting, StatusDone, StatusFailed} {
			assert.False(t, CanTransition(terminal, to),
				"expected %s -> %s to be illegal", terminal, to)
		}
	}
}

func TestRedeliveryReentersCurrentState(t *testing.T) {
	// A requeued task re-enters parsing/importing; this must not be
	// rejected as an illegal transition.
	assert.True(t, CanTransition(StatusParsing, StatusParsing))
	assert.True(t, CanTransition(StatusImporting, StatusImporting))
	assert.False(t, CanTransition(StatusDone, StatusDone))
}
