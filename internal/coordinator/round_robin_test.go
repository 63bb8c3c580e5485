package coordinator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/indexfleet/internal/cluster"
)

func TestNewRoundRobinRejectsEmpty(t *testing.T) {
	_, err := NewRoundRobin[string](nil)
	var cfgErr *cluster.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestRoundRobinSequence verifies that the K-th call returns items[(K-1) mod N].
func TestRoundRobinSequence(t *testing.T) {
	items := []string{"w1", "w2", "w3"}
	rr, err := NewRoundRobin(items)
	require.NoError(t, err)
	assert.Equal(t, 3, rr.Len())

	for k := 1; k <= 10; k++ {
		assert.Equal(t, items[(k-1)%len(items)], rr.Next(), "call %d", k)
	}
}

func TestRoundRobinSingleItem(t *testing.T) {
	rr, err := NewRoundRobin([]int{42})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 42, rr.Next())
	}
}

func TestRoundRobinCopiesInput(t *testing.T) {
	items := []string{"a", "b"}
	rr, err := NewRoundRobin(items)
	require.NoError(t, err)

	items[0] = "mutated"
	assert.Equal(t, "a", rr.Next())
}

// TestRoundRobinConcurrentBalance verifies that concurrent callers never skip
// or double an item beyond the ceil/floor bound.
func TestRoundRobinConcurrentBalance(t *testing.T) {
	const (
		n          = 3
		goroutines = 16
		perRoutine = 125
		total      = goroutines * perRoutine
	)
	rr, err := NewRoundRobin([]int{0, 1, 2})
	require.NoError(t, err)

	var mu sync.Mutex
	counts := make(map[int]int)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[int]int)
			for i := 0; i < perRoutine; i++ {
				local[rr.Next()]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	floor, ceil := total/n, (total+n-1)/n
	sum := 0
	for i := 0; i < n; i++ {
		assert.GreaterOrEqual(t, counts[i], floor)
		assert.LessOrEqual(t, counts[i], ceil)
		sum += counts[i]
	}
	assert.Equal(t, total, sum)
}
