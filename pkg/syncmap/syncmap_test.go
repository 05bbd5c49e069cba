package syncmap

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadOrStoreReturnsSameValueUnderContention(t *testing.T) {
	t.Parallel()

	var m Map[string, *int]

	var wg sync.WaitGroup

	results := make([]*int, 32)

	for i := range results {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			v := i
			results[i], _ = m.LoadOrStore("bucket", &v)
		}(i)
	}

	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}

	assert.Equal(t, 1, m.Count())
}

func TestStoreCountsOnlyNewKeys(t *testing.T) {
	t.Parallel()

	var m Map[int32, string]

	m.Store(1, "a")
	m.Store(1, "b")
	m.Store(2, "c")

	v, ok := m.Load(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, m.Count())

	values := m.Values()
	sort.Strings(values)
	assert.Equal(t, []string{"b", "c"}, values)

	_, ok = m.Load(3)
	assert.False(t, ok)
}
