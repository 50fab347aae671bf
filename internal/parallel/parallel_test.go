package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndex(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	For(1000, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(1000), counter)
}

func TestForBatchCoversGrid(t *testing.T) {
	cfg := DefaultConfig()

	batch, vocab := 4, 128
	seen := make([][]bool, batch)
	for b := range seen {
		seen[b] = make([]bool, vocab)
	}

	ForBatch(batch, vocab, func(b, v int) {
		seen[b][v] = true
	}, cfg)

	for b := range seen {
		for v := range seen[b] {
			assert.True(t, seen[b][v], "index [%d][%d] not visited", b, v)
		}
	}
}

func TestForDisabledRunsSequentially(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Config{Enabled: false})

	assert.Equal(t, int64(100), counter)
}

func TestForSmallWorkFallsBack(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1
	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func BenchmarkForVocabScoring(b *testing.B) {
	const vocab = 4096
	const dim = 16

	table := make([]float32, vocab*dim)
	bag := make([]float64, dim)
	for d := range bag {
		bag[d] = float64(d)
	}
	out := make([]float32, vocab)

	score := func(v int) {
		var dot float64
		for d := 0; d < dim; d++ {
			dot += bag[d] * float64(table[v*dim+d])
		}
		out[v] = float32(dot)
	}

	b.Run("parallel", func(b *testing.B) {
		cfg := DefaultConfig()
		for i := 0; i < b.N; i++ {
			For(vocab, score, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfg := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			For(vocab, score, cfg)
		}
	})
}
