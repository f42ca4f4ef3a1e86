package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyGate_Resolve(t *testing.T) {
	g := newReadyGate()

	settled, _ := g.Settled()
	assert.False(t, settled)

	g.resolve()
	require.NoError(t, g.Await(context.Background()))

	settled, err := g.Settled()
	assert.True(t, settled)
	assert.NoError(t, err)
}

func TestReadyGate_Reject(t *testing.T) {
	g := newReadyGate()
	g.reject(errors.New("auth failed"))

	err := g.Await(context.Background())
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Contains(t, err.Error(), "auth failed")
}

func TestReadyGate_FirstSettlementWins(t *testing.T) {
	g := newReadyGate()
	g.resolve()
	g.reject(errors.New("too late"))

	assert.NoError(t, g.Await(context.Background()))
}

func TestReadyGate_AwaitCancelled(t *testing.T) {
	g := newReadyGate()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := g.Await(ctx)
	assert.Equal(t, KindUnavailable, KindOf(err))
}
