package memory

import (
	"context"
	"iter"
	"sync"

	telemetry "proofing-monitor/internal/telemetry/domain"
)

// ReadingStore is an in-memory metric log.
type ReadingStore struct {
	mu     sync.RWMutex
	nextID int64
	series map[string][]telemetry.Reading
}

// NewReadingStore constructs an in-memory store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{series: make(map[string][]telemetry.Reading)}
}

// Append stores a copy of r and assigns its id.
func (s *ReadingStore) Append(ctx context.Context, r *telemetry.Reading) error {
	_ = ctx
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.series[r.Metric]
	var prev telemetry.Reading
	if len(existing) > 0 {
		prev = existing[len(existing)-1]
	}
	r.TS = telemetry.NormalizeTS(r.TS, prev.TS)
	s.nextID++
	r.ID = s.nextID
	s.series[r.Metric] = append(existing, cloneReading(*r))
	return nil
}

// Latest returns the newest reading for metric, or nil.
func (s *ReadingStore) Latest(ctx context.Context, metric string) (*telemetry.Reading, error) {
	_ = ctx
	if metric == "" {
		return nil, telemetry.ErrEmptyMetric
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.series[metric]
	if len(existing) == 0 {
		return nil, nil
	}
	r := cloneReading(existing[len(existing)-1])
	return &r, nil
}

// Series yields a snapshot of metric's readings in insertion order.
func (s *ReadingStore) Series(ctx context.Context, metric string) iter.Seq2[telemetry.Reading, error] {
	return func(yield func(telemetry.Reading, error) bool) {
		if metric == "" {
			yield(telemetry.Reading{}, telemetry.ErrEmptyMetric)
			return
		}
		s.mu.RLock()
		snapshot := make([]telemetry.Reading, len(s.series[metric]))
		copy(snapshot, s.series[metric])
		s.mu.RUnlock()

		for _, r := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(telemetry.Reading{}, err)
				return
			}
			if !yield(cloneReading(r), nil) {
				return
			}
		}
	}
}

func cloneReading(r telemetry.Reading) telemetry.Reading {
	if r.ValueNumeric != nil {
		v := *r.ValueNumeric
		r.ValueNumeric = &v
	}
	if r.ValueText != nil {
		t := *r.ValueText
		r.ValueText = &t
	}
	return r
}
