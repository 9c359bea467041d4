package component

import (
	"context"
	"sync"
)

// Base carries the name, lifetime context and goroutine tracking shared by
// components. Embed it and call StartContext and StopContext from Start and
// Stop.
type Base struct {
	name   string
	Ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewBase(name string) *Base {
	return &Base{name: name, Ctx: context.Background()}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) StartContext(parentCtx context.Context) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	b.mu.Lock()
	b.Ctx, b.cancel = context.WithCancel(parentCtx)
	b.mu.Unlock()
}

// StopContext cancels the component context and waits for goroutines
// started with Go. It is safe to call more than once.
func (b *Base) StopContext() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
