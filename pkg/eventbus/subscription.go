package eventbus

import (
	"fmt"
	"reflect"
	"sync"
)

// Bus.Unsubscribe находит обработчик по адресу кода функции, поэтому два замыкания
// из одного места программы для шины неразличимы. Listen подписывает на тему
// один диспетчер и раздает события получателям по собственным идентификаторам.

type fanoutKey struct {
	topic string
	typ   reflect.Type
}

type hub struct {
	mu      sync.Mutex
	nextID  uint64
	fanouts map[fanoutKey]any
}

var (
	hubsMu sync.Mutex
	hubs   = map[Bus]*hub{}
)

func hubFor(bus Bus) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()

	h, ok := hubs[bus]
	if !ok {
		h = &hub{fanouts: map[fanoutKey]any{}}
		hubs[bus] = h
	}
	return h
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

type fanout[T any] struct {
	mu       sync.RWMutex
	handlers []entry[T]
}

func (f *fanout[T]) dispatch(v T) {
	f.mu.RLock()
	handlers := append([]entry[T](nil), f.handlers...)
	f.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

func (f *fanout[T]) add(id uint64, fn func(T)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, entry[T]{id: id, fn: fn})
}

func (f *fanout[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.handlers {
		if h.id == id {
			f.handlers = append(f.handlers[:i], f.handlers[i+1:]...)
			return
		}
	}
}

// Subscription - подписка одного получателя на набор тем.
type Subscription struct {
	once    sync.Once
	removes []func()
}

// Close снимает только обработчики этой подписки. Повторный вызов ничего не делает.
func (s *Subscription) Close() {
	s.once.Do(func() {
		for _, remove := range s.removes {
			remove()
		}
	})
}

// Listen подписывает fn на темы topics шины bus. Подписки независимы: Close одной
// не затрагивает другие, даже если fn создан одним и тем же кодом.
func Listen[T any](bus Bus, fn func(T), topics ...string) (*Subscription, error) {
	h := hubFor(bus)
	typ := reflect.TypeOf((*T)(nil)).Elem()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	sub := &Subscription{}

	for _, topic := range topics {
		key := fanoutKey{topic: topic, typ: typ}
		f, ok := h.fanouts[key].(*fanout[T])
		if !ok {
			f = &fanout[T]{}
			if err := bus.Subscribe(topic, f.dispatch); err != nil {
				sub.Close()
				return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
			}
			h.fanouts[key] = f
		}
		f.add(id, fn)
		sub.removes = append(sub.removes, func() { f.remove(id) })
	}
	return sub, nil
}
