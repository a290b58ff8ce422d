package core

import "sync"

// changeNotifier fans the authority's single `changed` event out to
// subscribers. The event carries no payload; observers re-query the state
// they care about.
type changeNotifier struct {
	mu     sync.Mutex
	serial int
	subs   map[int]chan struct{}
}

func newChangeNotifier() *changeNotifier {
	return &changeNotifier{subs: make(map[int]chan struct{})}
}

// Subscribe registers an observer. The returned channel receives one
// element per notification batch; a pending element is not duplicated, so
// slow observers coalesce bursts. The cancel function removes the
// subscription.
func (n *changeNotifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.serial
	n.serial++

	ch := make(chan struct{}, 1)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
	return ch, cancel
}

// Notify delivers the changed event to every subscriber without blocking
func (n *changeNotifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
