package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/telatku/telatku/core/tardiness"
)

const cacheTTL = 30 * time.Second

var nowFunc = time.Now // mockable

type (
	Service interface {
		// Report fetches the records of filter once and computes every view from them.
		Report(ctx context.Context, filter Filter) (Report, error)
		// Records returns the records of filter in chronological order.
		Records(ctx context.Context, filter Filter) ([]tardiness.Record, error)
		// Normalize applies the filter defaults on the school clock.
		Normalize(filter *Filter) error
		// Invalidate drops the cached fetches; called whenever tardiness records change.
		Invalidate()
	}

	cacheEntry struct {
		records   []tardiness.Record
		fetchedAt time.Time
	}

	service struct {
		tardinessSvc tardiness.Service

		mu    sync.Mutex
		cache map[string]cacheEntry // {filter key: entry}
	}
)

var _ Service = (*service)(nil)

func NewService(tardinessSvc tardiness.Service) Service {
	return &service{tardinessSvc: tardinessSvc, cache: make(map[string]cacheEntry)}
}

func (svc *service) Normalize(filter *Filter) error {
	today := nowFunc().In(svc.tardinessSvc.Location())
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	return filter.Normalize(today)
}

func (svc *service) Report(ctx context.Context, filter Filter) (Report, error) {
	records, err := svc.Records(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	return Aggregate(filter, records), nil
}

func (svc *service) Records(ctx context.Context, filter Filter) ([]tardiness.Record, error) {
	qf := filter.recordFilter()
	key := qf.Key()

	svc.mu.Lock()
	entry, ok := svc.cache[key]
	svc.mu.Unlock()
	if ok && nowFunc().Sub(entry.fetchedAt) < cacheTTL {
		return entry.records, nil
	}

	records, err := svc.tardinessSvc.Query(ctx, qf, tardiness.OrderChronologic)
	if err != nil {
		return nil, errors.Wrap(err, "querying tardiness records")
	}

	now := nowFunc()
	svc.mu.Lock()
	svc.sweep(now)
	svc.cache[key] = cacheEntry{records: records, fetchedAt: now}
	svc.mu.Unlock()
	return records, nil
}

// sweep drops the expired entries. svc.mu must be held.
func (svc *service) sweep(now time.Time) {
	for key, entry := range svc.cache {
		if now.Sub(entry.fetchedAt) >= cacheTTL {
			delete(svc.cache, key)
		}
	}
}

func (svc *service) Invalidate() {
	svc.mu.Lock()
	svc.cache = make(map[string]cacheEntry)
	svc.mu.Unlock()
}
