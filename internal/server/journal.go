package server

import (
	"sort"
	"sync"
	"time"

	"github.com/pathshala-app/pathshala/internal/remote"
)

// journalKey identifies one change log entry from one device. Devices number
// their entries independently, so the device id is part of the key.
type journalKey struct {
	deviceID string
	entryID  uint
}

type journalRecord struct {
	deviceID          string
	change            remote.ChangeRecord
	receivedAtSeconds int64
}

// Journal is the authority-side ledger of accepted changes. Replayed entries
// are deduplicated by device and entry id, so a device that pushed a batch
// but missed the response can safely push it again.
type Journal struct {
	mu      sync.RWMutex
	seen    map[journalKey]struct{}
	records []journalRecord
	clock   func() time.Time
}

// JournalConfig describes the optional dependencies of the journal.
type JournalConfig struct {
	Clock func() time.Time
}

// NewJournal constructs an empty journal.
func NewJournal(cfg JournalConfig) *Journal {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Journal{
		seen:  make(map[journalKey]struct{}),
		clock: clock,
	}
}

// Record accepts a batch from one device and returns how many entries were
// new. Duplicates count as accepted toward the batch but are stored once.
func (j *Journal) Record(deviceID string, records []remote.ChangeRecord) int {
	now := j.clock().UTC().Unix()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, change := range records {
		key := journalKey{deviceID: deviceID, entryID: change.EntryID}
		if _, exists := j.seen[key]; exists {
			continue
		}
		j.seen[key] = struct{}{}
		j.records = append(j.records, journalRecord{
			deviceID:          deviceID,
			change:            change,
			receivedAtSeconds: now,
		})
	}
	return len(records)
}

// ChangesSince returns changes from other devices with a change time after
// the cursor, oldest first. The requesting device's own pushes are excluded
// since it already holds them.
func (j *Journal) ChangesSince(excludeDeviceID string, since int64) []remote.ChangeRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var changes []remote.ChangeRecord
	for _, record := range j.records {
		if record.deviceID == excludeDeviceID {
			continue
		}
		if record.change.ChangedAt <= since {
			continue
		}
		changes = append(changes, record.change)
	}
	sort.SliceStable(changes, func(i, k int) bool {
		return changes[i].ChangedAt < changes[k].ChangedAt
	})
	return changes
}

// Size reports the number of stored records.
func (j *Journal) Size() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}
