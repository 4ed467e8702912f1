package dagflow

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewContext(t *testing.T) {
	t.Run("generates run id", func(t *testing.T) {
		a := NewContext(context.Background())
		b := NewContext(context.Background())
		assert.NotEmpty(t, a.RunID())
		assert.NotEqual(t, a.RunID(), b.RunID())
		assert.Same(t, slog.Default(), a.Logger())
		assert.Empty(t, a.GraphID())
		assert.Empty(t, a.Node())
	})

	t.Run("explicit run id", func(t *testing.T) {
		ctx := NewContext(context.Background(), WithContextRunID("run-1"))
		assert.Equal(t, "run-1", ctx.RunID())

		id, ok := runIDFrom(ctx)
		assert.True(t, ok)
		assert.Equal(t, "run-1", id)
	})

	t.Run("inherits from parent", func(t *testing.T) {
		logger := discardLogger()
		parent := NewContext(context.Background(), WithContextRunID("run-2"), WithLogger(logger))
		child := NewContext(parent)
		assert.Equal(t, "run-2", child.RunID())
		assert.Same(t, logger, child.Logger())
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		ctx := NewContext(context.Background(), WithLogger(nil))
		assert.NotNil(t, ctx.Logger())
	})

	t.Run("plain context carrying run id", func(t *testing.T) {
		plain := context.WithValue(context.Background(), runIDKey{}, "run-3")
		assert.Equal(t, "run-3", NewContext(plain).RunID())
	})
}

func TestNodeContext(t *testing.T) {
	t.Run("bare context stays canonical", func(t *testing.T) {
		ctx := nodeContext(context.Background(), "g", "s1")
		assert.Empty(t, ctx.RunID())
		assert.Equal(t, "g", ctx.GraphID())
		assert.Equal(t, "s1", ctx.Node())
	})

	t.Run("run context gains node", func(t *testing.T) {
		base := newExecutionContext(context.Background(), WithContextRunID("r")).withGraph("g")
		ctx := nodeContext(base, "g", "s2")
		assert.Equal(t, "r", ctx.RunID())
		assert.Equal(t, "g", ctx.GraphID())
		assert.Equal(t, "s2", ctx.Node())
		assert.Same(t, ctx, nodeContext(ctx, "g", "s2"))
	})

	t.Run("withParent keeps run id", func(t *testing.T) {
		base := newExecutionContext(context.Background(), WithContextRunID("r"))
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		ctx := base.withParent(cancelled)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
		id, ok := runIDFrom(ctx)
		assert.True(t, ok)
		assert.Equal(t, "r", id)
	})
}
