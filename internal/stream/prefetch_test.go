package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupware/internal/models"
)

func offerN(t *testing.T, p *Prefetch, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.True(t, p.Offer(&models.Task{ID: int64(i)}, nil))
	}
}

func TestPrefetchTakeDrainsEverything(t *testing.T) {
	p := NewPrefetch(0, 10)
	offerN(t, p, 25)
	p.Finish()

	batch := p.Take(true)
	require.Len(t, batch, 25)
	for i, task := range batch {
		assert.Equal(t, int64(i+1), task.ID)
	}
	assert.Empty(t, p.Take(true))
	assert.False(t, p.HasNext())
}

func TestPrefetchFinishShortCircuitsMinimum(t *testing.T) {
	p := NewPrefetch(0, 10)
	offerN(t, p, 3)
	p.Finish()

	// fewer than the minimum buffered, but the producer is done
	batch := p.Take(true)
	assert.Len(t, batch, 3)
}

func TestPrefetchSingleItemTake(t *testing.T) {
	p := NewPrefetch(0, 10)
	offerN(t, p, 4)
	p.Finish()

	// without the minimum requirement a take is satisfied by the first item
	// but still drains whatever is buffered
	batch := p.Take(false)
	assert.Len(t, batch, 4)
}

func TestPrefetchHasNextLookahead(t *testing.T) {
	p := NewPrefetch(0, 10)
	offerN(t, p, 2)
	p.Finish()

	require.True(t, p.HasNext())
	require.True(t, p.HasNext()) // lookahead must not consume a second item

	batch := p.Take(true)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, int64(2), batch[1].ID)
}

func TestPrefetchOfferCancelled(t *testing.T) {
	p := NewPrefetch(1, 1)
	require.True(t, p.Offer(&models.Task{ID: 1}, nil))

	cancel := make(chan struct{})
	close(cancel)
	// buffer full, cancel fired: the offer must give up instead of blocking
	assert.False(t, p.Offer(&models.Task{ID: 2}, cancel))
}
