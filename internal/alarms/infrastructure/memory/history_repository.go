package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
)

// HistoryRepository keeps alert history in memory.
type HistoryRepository struct {
	mu      sync.RWMutex
	records []alarms.HistoryRecord
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// Append stores a record and assigns its id.
func (r *HistoryRepository) Append(_ context.Context, record *alarms.HistoryRecord) error {
	if record == nil {
		return errors.New("alert history repo: nil record")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.TS.IsZero() {
		record.TS = time.Now()
	}
	record.TS = record.TS.UTC().Truncate(time.Second)
	record.ID = int64(len(r.records) + 1)
	r.records = append(r.records, *record)
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *HistoryRepository) ListRecent(_ context.Context, limit int) ([]alarms.HistoryRecord, error) {
	if limit <= 0 {
		return nil, errors.New("alert history repo: limit must be positive")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]alarms.HistoryRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
