package database

import (
	"context"
	"sync"
	"time"
)

// TableChange notifies subscribers that rows in a table changed. Subscribers
// re-run their query on receipt; the notification carries no row data.
type TableChange struct {
	Table     string
	Timestamp time.Time
}

// TableNotifier is a table-scoped pub/sub used to drive live queries: the
// repositories publish after a commit, views re-read on notification.
type TableNotifier struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*tableSubscriber
	nextID      int64
	bufferSize  int
}

type tableSubscriber struct {
	id     int64
	stream chan TableChange
}

// NewTableNotifier constructs an empty notifier.
func NewTableNotifier() *TableNotifier {
	return &TableNotifier{
		subscribers: make(map[string]map[int64]*tableSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers for change notifications on one table. The returned
// cancel function is idempotent and also runs when ctx is done.
func (n *TableNotifier) Subscribe(ctx context.Context, table string) (<-chan TableChange, func()) {
	if table == "" {
		ch := make(chan TableChange)
		close(ch)
		return ch, func() {}
	}
	subscriber := &tableSubscriber{
		id:     n.nextSequence(),
		stream: make(chan TableChange, n.bufferSize),
	}
	n.register(table, subscriber)
	cleanup := func() {
		n.unregister(table, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish notifies every subscriber of the table. Slow subscribers whose
// buffer is full miss the notification; they catch up on the next one.
func (n *TableNotifier) Publish(table string) {
	if table == "" {
		return
	}
	change := TableChange{Table: table, Timestamp: time.Now().UTC()}

	n.mu.RLock()
	subscribers := n.subscribers[table]
	if len(subscribers) == 0 {
		n.mu.RUnlock()
		return
	}
	copies := make([]*tableSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	n.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- change:
		default:
		}
	}
}

func (n *TableNotifier) nextSequence() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	return n.nextID
}

func (n *TableNotifier) register(table string, subscriber *tableSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[table]; !ok {
		n.subscribers[table] = make(map[int64]*tableSubscriber)
	}
	n.subscribers[table][subscriber.id] = subscriber
}

func (n *TableNotifier) unregister(table string, subscriberID int64) {
	n.mu.Lock()
	subscribers := n.subscribers[table]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(n.subscribers, table)
		}
	}
	n.mu.Unlock()
}
