// Package memorybus diffuse les événements de runs aux abonnés du process (flux SSE).
package memorybus

import (
	"sync"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const defaultBuffer = 64

// Bus ne bloque jamais l'émetteur: un abonné trop lent perd des événements.
type Bus struct {
	mu      sync.Mutex
	subs    map[chan ports.Event]struct{}
	closed  bool
	buffer  int
	dropped uint64
}

func New() *Bus {
	return NewWithBuffer(defaultBuffer)
}

func NewWithBuffer(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{subs: make(map[chan ports.Event]struct{}), buffer: buffer}
}

func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	evt := ports.Event{Topic: topic, Payload: payload}
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped++
		}
	}
}

// Subscribe renvoie un canal fermé si le bus est déjà fermé.
func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ferme tous les abonnements; les flux SSE se terminent proprement.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
