package position

import "sync"

// Position is an observer location in world tile units.
type Position struct {
	X float64 `json:"x" validate:"min=-1e9,max=1e9"`
	Y float64 `json:"y" validate:"min=-1e9,max=1e9"`
}

// Source publishes position changes.
type Source interface {
	// Subscribe registers fn for future changes.
	Subscribe(fn func(Position)) (cancel func())
	// SubscribeImmediately registers fn and calls it with the current
	// position before returning.
	SubscribeImmediately(fn func(Position)) (cancel func())
}

type subscriber struct {
	id int
	fn func(Position)
}

// Observable is a Source whose value is set explicitly. Subscribers run on
// the setter's goroutine in registration order.
type Observable struct {
	mu      sync.Mutex
	current Position
	subs    []subscriber
	nextID  int
}

// NewObservable returns an Observable starting at initial.
func NewObservable(initial Position) *Observable {
	return &Observable{current: initial}
}

// Current returns the latest position.
func (o *Observable) Current() Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Set stores pos and notifies every subscriber.
func (o *Observable) Set(pos Position) {
	o.mu.Lock()
	o.current = pos
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(pos)
	}
}

// Subscribe implements Source.
func (o *Observable) Subscribe(fn func(Position)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addLocked(fn)
}

// SubscribeImmediately implements Source.
func (o *Observable) SubscribeImmediately(fn func(Position)) func() {
	o.mu.Lock()
	cancel := o.addLocked(fn)
	current := o.current
	o.mu.Unlock()

	fn(current)
	return cancel
}

// Subscribers is the number of registered callbacks.
func (o *Observable) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observable) addLocked(fn func(Position)) func() {
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}
