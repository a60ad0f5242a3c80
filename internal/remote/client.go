package remote

import (
	"context"
	"errors"
)

// ErrUnavailable wraps transport-level failures (connectivity loss, remote
// rejection). The sync manager treats it as retryable.
var ErrUnavailable = errors.New("remote: unavailable")

// ChangeRecord is the wire form of one change log entry. EntryID doubles as
// the per-item idempotency key: replaying a batch after an uncertain outcome
// must not duplicate remote records.
type ChangeRecord struct {
	EntryID    uint   `json:"entry_id"`
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
	Action     string `json:"action"`
	ChangedAt  int64  `json:"changed_at_s"`
}

// PushResult reports the outcome of one accepted batch.
type PushResult struct {
	Accepted int `json:"accepted"`
}

// Client is the remote sync authority as seen by the sync manager. Push is
// all-or-nothing from the caller's perspective: on error no record may be
// considered delivered. Pull fetches authoritative changes after a cursor.
type Client interface {
	Push(ctx context.Context, batchID string, records []ChangeRecord) (PushResult, error)
	Pull(ctx context.Context, since int64) ([]ChangeRecord, error)
}
