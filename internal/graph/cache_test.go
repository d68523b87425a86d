package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModules struct {
	ModuleProvider
	linkCalls int
	fileCalls int
	fail      bool
}

func (c *countingModules) Links(ctx context.Context, id string, dir Direction) ([]ModuleLink, error) {
	c.linkCalls++
	if c.fail {
		return nil, errors.New("backend down")
	}
	return c.ModuleProvider.Links(ctx, id, dir)
}

func (c *countingModules) ModuleForFile(ctx context.Context, file string) (*Module, error) {
	c.fileCalls++
	return c.ModuleProvider.ModuleForFile(ctx, file)
}

func TestCachedModulesMemoizes(t *testing.T) {
	backend := &countingModules{ModuleProvider: loadTestGraph(t)}
	cached, err := NewCachedModules(backend, 0)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		links, err := cached.Links(ctx, "payments", Incoming)
		require.NoError(t, err)
		assert.Len(t, links, 2)
	}
	assert.Equal(t, 1, backend.linkCalls)

	// Direction is part of the key.
	_, err = cached.Links(ctx, "payments", Outgoing)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.linkCalls)

	for i := 0; i < 2; i++ {
		m, err := cached.ModuleForFile(ctx, "internal/billing/invoice.go")
		require.NoError(t, err)
		assert.Equal(t, "billing", m.ID)
	}
	assert.Equal(t, 1, backend.fileCalls)

	// Uncached methods pass through.
	m, err := cached.Module(ctx, "payments")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestCachedModulesDoesNotCacheErrors(t *testing.T) {
	backend := &countingModules{ModuleProvider: loadTestGraph(t), fail: true}
	cached, err := NewCachedModules(backend, 8)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Links(ctx, "payments", Incoming)
	assert.Error(t, err)

	backend.fail = false
	links, err := cached.Links(ctx, "payments", Incoming)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Equal(t, 2, backend.linkCalls)
}
