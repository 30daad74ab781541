package command_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/NTC/internal/command"
	"github.com/andrej220/NTC/internal/lg"
)

func TestRegistryRouting(t *testing.T) {
	reg := command.NewRegistry()
	opts := command.Options{Commands: []command.Spec{{Command: "uptime"}}}

	first, err := command.NewDispatchJob(uuid.New(), "node-1", opts, &mockStore{}, lg.Discard)
	require.NoError(t, err)

	reg.Register(first)
	got, ok := reg.Lookup("node-1")
	assert.True(t, ok)
	assert.Same(t, first, got)

	_, ok = reg.Lookup("node-2")
	assert.False(t, ok)

	reg.Deregister(first)
	_, ok = reg.Lookup("node-1")
	assert.False(t, ok)
}

func TestRegistryReplacementSurvivesStaleDeregister(t *testing.T) {
	reg := command.NewRegistry()
	opts := command.Options{Commands: []command.Spec{{Command: "uptime"}}}

	first, err := command.NewDispatchJob(uuid.New(), "node-1", opts, &mockStore{}, lg.Discard)
	require.NoError(t, err)
	second, err := command.NewDispatchJob(uuid.New(), "node-1", opts, &mockStore{}, lg.Discard)
	require.NoError(t, err)

	reg.Register(first)
	reg.Register(second) // replaces first

	// the finished first job must not evict its replacement
	reg.Deregister(first)
	got, ok := reg.Lookup("node-1")
	assert.True(t, ok)
	assert.Same(t, second, got)
}
