package host

import "sync"

// ProgressBroadcaster fans out download progress snapshots to any
// listeners (e.g. the websocket feed). It keeps the most recent value so
// new subscribers get an immediate sample.
type ProgressBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan Progress
	nextID   int
	last     Progress
	haveLast bool
}

func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{subs: make(map[int]chan Progress)}
}

func (b *ProgressBroadcaster) Subscribe(buffer int) (int, <-chan Progress) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan Progress, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *ProgressBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers p to all subscribers without blocking; slow listeners
// miss intermediate samples rather than stalling the download worker.
func (b *ProgressBroadcaster) Publish(p Progress) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]chan Progress, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- p:
		default:
		}
	}
	b.mu.Lock()
	b.last = p
	b.haveLast = true
	b.mu.Unlock()
}
