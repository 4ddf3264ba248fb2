// Package memory provides an in-memory, non-persistent broker for scan
// progress events. Subscribers live as long as the context they registered
// with.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

type handlerSet[T any] struct {
	next     uint64
	handlers map[uint64]func(T) error
	order    []uint64
}

func newHandlerSet[T any]() *handlerSet[T] {
	return &handlerSet[T]{handlers: make(map[uint64]func(T) error)}
}

// Broker fans progress events out to every registered handler.
type Broker struct {
	mu       sync.RWMutex
	progress *handlerSet[scanning.Progress]
}

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{progress: newHandlerSet[scanning.Progress]()}
}

// subscribe registers handler until ctx is done.
func subscribe[T any](ctx context.Context, mu *sync.RWMutex, set *handlerSet[T], handler func(T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	mu.Lock()
	id := set.next
	set.next++
	set.handlers[id] = handler
	set.order = append(set.order, id)
	mu.Unlock()

	go func() {
		<-ctx.Done()
		mu.Lock()
		defer mu.Unlock()
		delete(set.handlers, id)
		for i, v := range set.order {
			if v == id {
				set.order = append(set.order[:i], set.order[i+1:]...)
				break
			}
		}
	}()

	return nil
}

// publish delivers msg to handlers in subscription order, stopping at the
// first error.
func publish[T any](ctx context.Context, mu *sync.RWMutex, set *handlerSet[T], msg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu.RLock()
	// Copy so handlers run without holding the lock.
	handlers := make([]func(T) error, 0, len(set.order))
	for _, id := range set.order {
		handlers = append(handlers, set.handlers[id])
	}
	mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(msg); err != nil {
			return err
		}
	}
	return nil
}

// PublishProgress broadcasts a progress update to all subscribers.
func (b *Broker) PublishProgress(ctx context.Context, p scanning.Progress) error {
	return publish(ctx, &b.mu, b.progress, p)
}

// SubscribeProgress registers handler for every progress update.
func (b *Broker) SubscribeProgress(ctx context.Context, handler func(scanning.Progress) error) error {
	return subscribe(ctx, &b.mu, b.progress, handler)
}

// SubscribeScan registers handler for progress updates of a single scan.
func (b *Broker) SubscribeScan(ctx context.Context, scanID string, handler func(scanning.Progress) error) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	return b.SubscribeProgress(ctx, func(p scanning.Progress) error {
		if p.ScanID != scanID {
			return nil
		}
		return handler(p)
	})
}

// Subscribers returns the number of active progress subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.progress.order)
}
