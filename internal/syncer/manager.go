package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathshala-app/pathshala/internal/changelog"
	"github.com/pathshala-app/pathshala/internal/connectivity"
	"github.com/pathshala-app/pathshala/internal/remote"
)

// Status names the sync manager's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

var (
	errMissingChangeLog    = errors.New("syncer: change log is required")
	errMissingRemote       = errors.New("syncer: remote client is required")
	errMissingConnectivity = errors.New("syncer: connectivity monitor is required")
	noOpLogger             = zap.NewNop()
)

const (
	defaultSyncInterval        = 30 * time.Second
	defaultPendingPollInterval = 5 * time.Second
	snapshotBufferSize         = 8
)

// Snapshot is a point-in-time view of the sync surface. LastSyncTime stays
// zero until the first successful round.
type Snapshot struct {
	Status       Status
	PendingCount int
	IsOnline     bool
	LastSyncTime time.Time
}

// Outcome summarizes one sync round. Skipped rounds are not failures: a round
// is skipped when another round is in flight or the device is offline.
type Outcome struct {
	Synced  int
	Skipped bool
}

// ManagerConfig describes the dependencies of the sync manager.
type ManagerConfig struct {
	ChangeLog    *changelog.Log
	Remote       remote.Client
	Connectivity *connectivity.Monitor
	// Database is optional. When set, successful rounds write the synced
	// status back to the denormalized mirror columns on domain tables.
	Database            *gorm.DB
	SyncInterval        time.Duration
	PendingPollInterval time.Duration
	IDProvider          IDProvider
	Clock               func() time.Time
	Logger              *zap.Logger
}

// Manager drains the change log to the remote authority. One round runs at a
// time; triggers that arrive while a round is in flight are dropped, since the
// in-flight round already covers every entry the trigger could have seen.
type Manager struct {
	changeLog    *changelog.Log
	remote       remote.Client
	connectivity *connectivity.Monitor
	db           *gorm.DB

	syncInterval        time.Duration
	pendingPollInterval time.Duration
	idProvider          IDProvider
	clock               func() time.Time
	logger              *zap.Logger

	inFlight sync.Mutex

	mu          sync.RWMutex
	status      Status
	pending     int
	lastSync    time.Time
	pullCursor  int64
	subscribers map[int64]*snapshotSubscriber
	nextID      int64

	triggers chan struct{}
}

type snapshotSubscriber struct {
	id     int64
	stream chan Snapshot
}

// NewManager constructs the sync manager. The initial status follows the
// connectivity monitor: offline devices start in the offline state.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.ChangeLog == nil {
		return nil, errMissingChangeLog
	}
	if cfg.Remote == nil {
		return nil, errMissingRemote
	}
	if cfg.Connectivity == nil {
		return nil, errMissingConnectivity
	}
	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}
	pollInterval := cfg.PendingPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPendingPollInterval
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	status := StatusIdle
	if !cfg.Connectivity.IsOnline() {
		status = StatusOffline
	}
	return &Manager{
		changeLog:           cfg.ChangeLog,
		remote:              cfg.Remote,
		connectivity:        cfg.Connectivity,
		db:                  cfg.Database,
		syncInterval:        syncInterval,
		pendingPollInterval: pollInterval,
		idProvider:          idProvider,
		clock:               clock,
		logger:              logger,
		status:              status,
		subscribers:         make(map[int64]*snapshotSubscriber),
		triggers:            make(chan struct{}, 1),
	}, nil
}

// Snapshot returns the current sync surface.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Status:       m.status,
		PendingCount: m.pending,
		IsOnline:     m.connectivity.IsOnline(),
		LastSyncTime: m.lastSync,
	}
}

// Status reports the manager's current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// PendingCount reports the number of change log entries awaiting push, as of
// the last refresh.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending
}

// LastSyncTime reports when the last round completed successfully, or the
// zero time if none has.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}

// IsOnline reports the connectivity monitor's current state.
func (m *Manager) IsOnline() bool {
	return m.connectivity.IsOnline()
}

// TriggerSync requests a sync round without waiting for it. The request is
// dropped when a round is already queued or in flight.
func (m *Manager) TriggerSync() {
	select {
	case m.triggers <- struct{}{}:
	default:
	}
}

// Subscribe registers for snapshot updates. Every status or pending-count
// change produces a snapshot; slow consumers miss intermediate ones. The
// cancel function is idempotent and also runs when ctx is done.
func (m *Manager) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	m.mu.Lock()
	m.nextID++
	subscriber := &snapshotSubscriber{
		id:     m.nextID,
		stream: make(chan Snapshot, snapshotBufferSize),
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

// SyncOnce runs a single sync round: push every pending entry as one batch,
// mark the batch synced, then pull best-effort. The push is all-or-nothing; a
// failed push leaves every entry pending for the next round.
func (m *Manager) SyncOnce(ctx context.Context) (Outcome, error) {
	if !m.beginRound() {
		return Outcome{Skipped: true}, nil
	}
	defer m.endRound()

	if !m.connectivity.IsOnline() {
		m.setStatus(StatusOffline)
		return Outcome{Skipped: true}, nil
	}

	pending, err := m.changeLog.ListPending(ctx)
	if err != nil {
		m.setStatus(StatusError)
		m.logger.Error("sync round failed",
			zap.String("operation", "syncer.list_pending"),
			zap.Error(err))
		return Outcome{}, err
	}
	m.setPending(len(pending))
	if len(pending) == 0 {
		m.setStatus(StatusIdle)
		return Outcome{}, nil
	}

	m.setStatus(StatusSyncing)
	batchID, err := m.idProvider.NewID()
	if err != nil {
		m.setStatus(StatusError)
		return Outcome{}, fmt.Errorf("syncer: batch id: %w", err)
	}

	records := make([]remote.ChangeRecord, 0, len(pending))
	ids := make([]uint, 0, len(pending))
	for _, entry := range pending {
		records = append(records, remote.ChangeRecord{
			EntryID:    entry.ID,
			EntityType: string(entry.EntityType),
			EntityID:   entry.EntityID,
			Action:     string(entry.Action),
			ChangedAt:  entry.CreatedAtSeconds,
		})
		ids = append(ids, entry.ID)
	}

	if _, err := m.remote.Push(ctx, batchID, records); err != nil {
		if !m.connectivity.IsOnline() {
			m.setStatus(StatusOffline)
		} else {
			m.setStatus(StatusError)
		}
		m.logger.Warn("sync push failed",
			zap.String("operation", "syncer.push"),
			zap.String("batch_id", batchID),
			zap.Int("entry_count", len(records)),
			zap.Error(err))
		return Outcome{}, fmt.Errorf("syncer: push batch %s: %w", batchID, err)
	}

	if err := m.changeLog.MarkSynced(ctx, ids); err != nil {
		// The remote already holds the batch; the retry re-pushes and the
		// remote deduplicates by entry id.
		m.setStatus(StatusError)
		return Outcome{}, err
	}
	m.writeBackMirrors(ctx)

	completedAt := m.clock().UTC()
	m.pull(ctx)

	count, err := m.changeLog.PendingCount(ctx)
	if err != nil {
		m.setStatus(StatusError)
		return Outcome{}, err
	}
	m.finishRound(completedAt, count)
	m.logger.Info("sync round completed",
		zap.String("batch_id", batchID),
		zap.Int("synced", len(ids)),
		zap.Int("still_pending", count))
	return Outcome{Synced: len(ids)}, nil
}

// Run drives the manager until ctx is done: manual triggers, reconnect
// transitions, the periodic sync ticker, and the pending-count poll.
func (m *Manager) Run(ctx context.Context) error {
	transitions, cancelTransitions := m.connectivity.Subscribe(ctx)
	defer cancelTransitions()

	m.refreshPending(ctx)
	if m.connectivity.IsOnline() {
		m.TriggerSync()
	} else {
		m.setStatus(StatusOffline)
	}

	syncTicker := time.NewTicker(m.syncInterval)
	defer syncTicker.Stop()
	pollTicker := time.NewTicker(m.pendingPollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.triggers:
			if _, err := m.SyncOnce(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		case transition := <-transitions:
			if transition.Online {
				m.logger.Info("connectivity restored, syncing")
				m.TriggerSync()
			} else {
				m.logger.Info("connectivity lost")
				m.setStatus(StatusOffline)
			}
		case <-syncTicker.C:
			m.TriggerSync()
		case <-pollTicker.C:
			m.refreshPending(ctx)
		}
	}
}

func (m *Manager) beginRound() bool {
	return m.inFlight.TryLock()
}

func (m *Manager) endRound() {
	m.inFlight.Unlock()
}

func (m *Manager) refreshPending(ctx context.Context) {
	count, err := m.changeLog.PendingCount(ctx)
	if err != nil {
		m.logger.Warn("pending count refresh failed", zap.Error(err))
		return
	}
	m.setPending(count)
}

// pull applies remote changes best-effort. A pull failure never degrades the
// round: the push already succeeded and local state is authoritative for
// everything the device edits.
func (m *Manager) pull(ctx context.Context) {
	m.mu.RLock()
	since := m.pullCursor
	m.mu.RUnlock()

	records, err := m.remote.Pull(ctx, since)
	if err != nil {
		m.logger.Warn("sync pull failed",
			zap.String("operation", "syncer.pull"),
			zap.Int64("since", since),
			zap.Error(err))
		return
	}
	cursor := since
	for _, record := range records {
		if record.ChangedAt > cursor {
			cursor = record.ChangedAt
		}
	}
	m.mu.Lock()
	m.pullCursor = cursor
	m.mu.Unlock()
	if len(records) > 0 {
		m.logger.Info("sync pull applied", zap.Int("record_count", len(records)))
	}
}

// writeBackMirrors flips the denormalized sync_status columns to synced for
// entities with no remaining pending entries. The ledger stays authoritative;
// the mirrors only serve cheap per-row reads in the UI layers.
func (m *Manager) writeBackMirrors(ctx context.Context) {
	if m.db == nil {
		return
	}
	statements := []string{
		`UPDATE notes SET sync_status = 'synced'
		 WHERE sync_status = 'pending'
		   AND id NOT IN (SELECT entity_id FROM change_log WHERE entity_type = 'note' AND synced = false)`,
		`UPDATE calendar_events SET sync_status = 'synced'
		 WHERE sync_status = 'pending'
		   AND id NOT IN (SELECT entity_id FROM change_log WHERE entity_type = 'calendarEvent' AND synced = false)`,
	}
	for _, statement := range statements {
		if err := m.db.WithContext(ctx).Exec(statement).Error; err != nil {
			m.logger.Warn("sync status write-back failed", zap.Error(err))
			return
		}
	}
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) setPending(count int) {
	m.mu.Lock()
	if m.pending == count {
		m.mu.Unlock()
		return
	}
	m.pending = count
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) finishRound(completedAt time.Time, pending int) {
	m.mu.Lock()
	m.lastSync = completedAt
	m.pending = pending
	m.status = StatusIdle
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) publish() {
	snapshot := m.Snapshot()
	m.mu.RLock()
	copies := make([]*snapshotSubscriber, 0, len(m.subscribers))
	for _, subscriber := range m.subscribers {
		copies = append(copies, subscriber)
	}
	m.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- snapshot:
		default:
		}
	}
}
