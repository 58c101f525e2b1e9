package relay_test

import (
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelator(t *testing.T) {
	t.Parallel()

	t.Run("resolves with elapsed time", func(t *testing.T) {
		t.Parallel()
		clk := newClock()
		c := relay.NewCorrelator(clk.Now)
		c.Begin("c1", "1", "create_frame", map[string]any{"width": 100})
		assert.Equal(t, 1, c.Pending())

		clk.Advance(40 * time.Millisecond)
		res, ok := c.Resolve("c1", "1")
		require.True(t, ok)
		assert.Equal(t, "create_frame", res.Call.Command)
		assert.Equal(t, map[string]any{"width": 100}, res.Call.Params)
		assert.Equal(t, 40*time.Millisecond, res.Duration)
		assert.Equal(t, 0, c.Pending())
	})

	t.Run("unknown and resolved ids do not match", func(t *testing.T) {
		t.Parallel()
		c := relay.NewCorrelator(nil)
		_, ok := c.Resolve("c1", "nope")
		assert.False(t, ok)

		c.Begin("c1", "1", "x", nil)
		_, ok = c.Resolve("c1", "1")
		require.True(t, ok)
		_, ok = c.Resolve("c1", "1")
		assert.False(t, ok)
	})

	t.Run("ids are scoped per channel", func(t *testing.T) {
		t.Parallel()
		c := relay.NewCorrelator(nil)
		c.Begin("c1", "1", "a", nil)
		c.Begin("c2", "1", "b", nil)
		assert.Equal(t, 2, c.Pending())

		res, ok := c.Resolve("c2", "1")
		require.True(t, ok)
		assert.Equal(t, "b", res.Call.Command)
		res, ok = c.Resolve("c1", "1")
		require.True(t, ok)
		assert.Equal(t, "a", res.Call.Command)
	})

	t.Run("duplicate id replaces pending call", func(t *testing.T) {
		t.Parallel()
		c := relay.NewCorrelator(nil)
		c.Begin("c1", "1", "first", nil)
		c.Begin("c1", "1", "second", nil)
		assert.Equal(t, 1, c.Pending())
		res, ok := c.Resolve("c1", "1")
		require.True(t, ok)
		assert.Equal(t, "second", res.Call.Command)
	})

	t.Run("clock going backwards yields zero duration", func(t *testing.T) {
		t.Parallel()
		clk := newClock()
		c := relay.NewCorrelator(clk.Now)
		c.Begin("c1", "1", "x", nil)
		clk.Advance(-time.Second)
		res, ok := c.Resolve("c1", "1")
		require.True(t, ok)
		assert.Equal(t, time.Duration(0), res.Duration)
	})
}
