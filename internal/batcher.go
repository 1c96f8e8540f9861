package internal

import "sync"

type Batcher struct {
	mu sync.Mutex

	// each nested batch increases the depth by 1
	// if depth > 0, change notifications are held until the outermost batch is complete
	depth int
}

func NewBatcher() *Batcher {
	return &Batcher{
		depth: 0,
	}
}

func (b *Batcher) IsBatching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.depth > 0
}

func (b *Batcher) Batch(fn, onComplete func()) {
	b.mu.Lock()
	b.depth++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.depth--
		done := b.depth == 0
		b.mu.Unlock()

		if done && onComplete != nil {
			onComplete()
		}
	}()

	fn()
}
