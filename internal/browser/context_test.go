// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "tab"

	t.Run("CarriesTabValues", func(t *testing.T) {
		tab := context.WithValue(context.Background(), key, "target-1")
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()

		assert.Equal(t, "target-1", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("EndsWithTab", func(t *testing.T) {
		tab, closeTab := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tab, context.Background())
		defer cancel()

		closeTab()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("EndsWithOperationDeadline", func(t *testing.T) {
		tab, closeTab := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeTab()
		op, cancelOp := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancelOp()

		combined, cancel := CombineContext(tab, op)
		defer cancel()

		<-combined.Done()
		assert.ErrorIs(t, op.Err(), context.DeadlineExceeded)
		// The combined context is cancelled rather than expired; callers consult op.Err().
		assert.ErrorIs(t, combined.Err(), context.Canceled)
		assert.NoError(t, tab.Err(), "the tab outlives the operation")
	})

	t.Run("ExplicitCancelStopsWatcher", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}
