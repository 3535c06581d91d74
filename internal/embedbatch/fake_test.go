package embedbatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeEmbeddingService is a deterministic ragtypes.EmbeddingService test
// double: each call increments a counter, optionally fails the first N
// calls, and returns a fixed-dimension vector derived from text length.
type fakeEmbeddingService struct {
	dims       int
	failCount  int32 // number of EmbedBatch calls left to fail
	calls      int32
	batchSizes []int
	mu         sync.Mutex
}

func newFakeEmbeddingService(dims int) *fakeEmbeddingService {
	return &fakeEmbeddingService{dims: dims}
}

func (f *fakeEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()

	if atomic.LoadInt32(&f.failCount) > 0 {
		atomic.AddInt32(&f.failCount, -1)
		return nil, fmt.Errorf("simulated embedding failure")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(t))
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbeddingService) Dimensions() int { return f.dims }
