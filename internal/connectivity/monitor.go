package connectivity

import (
	"context"
	"sync"
	"time"
)

// Transition reports one online/offline state change.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor tracks the device's connectivity state. It is event-driven: the
// host environment feeds transitions through SetOnline, and the constructor
// seeds the initial state since no event fires for it retroactively.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	subscribers map[int64]*monitorSubscriber
	nextID      int64
	clock       func() time.Time
}

type monitorSubscriber struct {
	id     int64
	stream chan Transition
}

// NewMonitor constructs a monitor seeded with the current environment state.
func NewMonitor(initiallyOnline bool) *Monitor {
	return &Monitor{
		online:      initiallyOnline,
		subscribers: make(map[int64]*monitorSubscriber),
		clock:       time.Now,
	}
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity change and notifies subscribers. Setting
// the current state again is a no-op; subscribers only see transitions.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	transition := Transition{Online: online, At: m.clock().UTC()}
	copies := make([]*monitorSubscriber, 0, len(m.subscribers))
	for _, subscriber := range m.subscribers {
		copies = append(copies, subscriber)
	}
	m.mu.Unlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- transition:
		default:
		}
	}
}

// Subscribe registers for connectivity transitions. The cancel function is
// idempotent and also runs when ctx is done.
func (m *Monitor) Subscribe(ctx context.Context) (<-chan Transition, func()) {
	m.mu.Lock()
	m.nextID++
	subscriber := &monitorSubscriber{
		id:     m.nextID,
		stream: make(chan Transition, 4),
	}
	m.subscribers[subscriber.id] = subscriber
	m.mu.Unlock()

	cleanup := func() {
		m.mu.Lock()
		delete(m.subscribers, subscriber.id)
		m.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}
