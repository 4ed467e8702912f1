package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New[string, int]()
	require.NotNil(t, r)
	assert.False(t, r.Has("run-1"))
}

func TestAddAndGet(t *testing.T) {
	r := New[string, string]()

	assert.True(t, r.Add("run-1", "first"))
	assert.False(t, r.Add("run-1", "second"))

	v, ok := r.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, "first", v, "Add must not replace a live entry")

	v, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestTake(t *testing.T) {
	tests := []struct {
		name   string
		seed   bool
		wantOK bool
	}{
		{name: "present", seed: true, wantOK: true},
		{name: "missing", seed: false, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[string, int]()
			if tt.seed {
				require.True(t, r.Add("run-1", 7))
			}

			v, ok := r.Take("run-1")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, 7, v)
			}
			assert.False(t, r.Has("run-1"))
		})
	}
}

func TestTakeFreesKey(t *testing.T) {
	r := New[string, int]()
	require.True(t, r.Add("run-1", 1))
	_, ok := r.Take("run-1")
	require.True(t, ok)

	assert.True(t, r.Add("run-1", 2), "a taken key can be added again")
	v, _ := r.Get("run-1")
	assert.Equal(t, 2, v)
}

func TestNilValue(t *testing.T) {
	r := New[string, *int]()
	require.True(t, r.Add("nil", nil))

	v, ok := r.Get("nil")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestConcurrentAddOneWinner(t *testing.T) {
	r := New[string, int]()
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := range 100 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if r.Add("run", v) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, r.Has("run"))
}

func TestConcurrentAddTake(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup

	for i := range 200 {
		wg.Add(1)
		go func(key int) {
			defer wg.Done()
			assert.True(t, r.Add(key, key*2))
			v, ok := r.Take(key)
			assert.True(t, ok)
			assert.Equal(t, key*2, v)
		}(i)
	}
	wg.Wait()

	for i := range 200 {
		assert.False(t, r.Has(i))
	}
}

func BenchmarkGet(b *testing.B) {
	r := New[int, int]()
	for i := range 1000 {
		r.Add(i, i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Get(i % 1000)
	}
}

func BenchmarkAddTake(b *testing.B) {
	r := New[int, int]()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Add(i, i)
		r.Take(i)
	}
}

func BenchmarkConcurrentGet(b *testing.B) {
	r := New[int, int]()
	for i := range 1000 {
		r.Add(i, i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Get(i % 1000)
			i++
		}
	})
}
