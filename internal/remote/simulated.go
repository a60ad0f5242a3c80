package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulatedClientConfig configures the in-process stand-in authority.
type SimulatedClientConfig struct {
	// Latency applies to every round-trip; zero means no delay.
	Latency time.Duration
}

// SimulatedClient mimics the remote authority with fixed latency and
// always-succeed semantics. Tests inject failures through SetPushError to
// exercise the sync manager's error state.
type SimulatedClient struct {
	latency time.Duration

	mu       sync.Mutex
	accepted map[uint]ChangeRecord
	order    []uint
	pushErr  error
}

// NewSimulatedClient constructs a simulated authority.
func NewSimulatedClient(cfg SimulatedClientConfig) *SimulatedClient {
	latency := cfg.Latency
	if latency < 0 {
		latency = 0
	}
	return &SimulatedClient{
		latency:  latency,
		accepted: make(map[uint]ChangeRecord),
	}
}

// SetPushError makes subsequent pushes fail until cleared with nil.
func (c *SimulatedClient) SetPushError(err error) {
	c.mu.Lock()
	c.pushErr = err
	c.mu.Unlock()
}

// Push records the batch after the simulated latency. Records already seen
// (by entry id) are acknowledged without being stored twice.
func (c *SimulatedClient) Push(ctx context.Context, batchID string, records []ChangeRecord) (PushResult, error) {
	if err := c.sleep(ctx); err != nil {
		return PushResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return PushResult{}, fmt.Errorf("%w: batch %s: %v", ErrUnavailable, batchID, c.pushErr)
	}
	for _, record := range records {
		if _, seen := c.accepted[record.EntryID]; seen {
			continue
		}
		c.accepted[record.EntryID] = record
		c.order = append(c.order, record.EntryID)
	}
	return PushResult{Accepted: len(records)}, nil
}

// Pull returns nothing: the simulated authority never originates changes.
func (c *SimulatedClient) Pull(ctx context.Context, since int64) ([]ChangeRecord, error) {
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// AcceptedRecords returns the accepted records in arrival order.
func (c *SimulatedClient) AcceptedRecords() []ChangeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]ChangeRecord, 0, len(c.order))
	for _, entryID := range c.order {
		records = append(records, c.accepted[entryID])
	}
	return records
}

func (c *SimulatedClient) sleep(ctx context.Context) error {
	if c.latency == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}
