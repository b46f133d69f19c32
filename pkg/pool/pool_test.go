package pool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_ResultsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{0, 1, 4, 16} {
		p := New(workers)

		results := make([]int, 100)
		p.Map(len(results), func(i int) {
			results[i] = i * i
		})

		for i, r := range results {
			assert.Equal(t, i*i, r)
		}
	}
}

func TestMap_RunsEveryJobExactlyOnce(t *testing.T) {
	t.Parallel()

	p := New(8)
	var calls int32
	p.Map(1000, func(i int) {
		atomic.AddInt32(&calls, 1)
	})
	assert.Equal(t, int32(1000), calls)
}

func TestMap_NilPoolIsSynchronous(t *testing.T) {
	t.Parallel()

	var p *Pool
	assert.Equal(t, 1, p.Workers())

	ran := 0
	p.Map(5, func(i int) { ran++ })
	assert.Equal(t, 5, ran)
}
