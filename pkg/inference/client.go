// Package inference talks to the external generative-model service used
// for OCR, embeddings and summarization. All implementations share one
// global concurrency limit so the pipeline cannot flood the backend.
package inference

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent caps simultaneous outbound inference calls.
const DefaultMaxConcurrent = 2

// Client is the inference surface the pipeline depends on.
type Client interface {
	// Embed returns an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Transcribe performs OCR on a rendered page image (PNG bytes).
	Transcribe(ctx context.Context, image []byte) (string, error)

	// Complete sends a prompt and returns the model's text response.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Limited wraps a Client with a weighted semaphore so at most
// maxConcurrent calls are in flight across all workers. The semaphore is
// created on first use.
type Limited struct {
	inner Client
	max   int64

	once sync.Once
	sem  *semaphore.Weighted
}

// NewLimited wraps inner with a concurrency limit. maxConcurrent of zero
// uses DefaultMaxConcurrent.
func NewLimited(inner Client, maxConcurrent int) *Limited {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Limited{inner: inner, max: int64(maxConcurrent)}
}

func (l *Limited) acquire(ctx context.Context) error {
	l.once.Do(func() {
		l.sem = semaphore.NewWeighted(l.max)
	})
	return l.sem.Acquire(ctx, 1)
}

// Embed implements Client.
func (l *Limited) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.inner.Embed(ctx, text)
}

// Transcribe implements Client.
func (l *Limited) Transcribe(ctx context.Context, image []byte) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.inner.Transcribe(ctx, image)
}

// Complete implements Client.
func (l *Limited) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.inner.Complete(ctx, system, prompt)
}
