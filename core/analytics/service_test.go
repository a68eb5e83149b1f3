package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/tardiness"
)

// countingTardiness serves fixed records and counts the queries.
type countingTardiness struct {
	tardiness.Service
	records []tardiness.Record
	queries int
}

func (s *countingTardiness) Query(context.Context, *tardiness.QueryFilter, []core.DBOrdering) ([]tardiness.Record, error) {
	s.queries++
	return s.records, nil
}

func (s *countingTardiness) Location() *time.Location { return time.UTC }

func mockNow(t *testing.T, now *time.Time) {
	orig := nowFunc
	nowFunc = func() time.Time { return *now }
	t.Cleanup(func() { nowFunc = orig })
}

func TestService_cache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)
	mockNow(t, &now)

	src := &countingTardiness{records: []tardiness.Record{
		rec("a", "Ani", "X A", "2024-01-15", tardiness.ReasonMacet),
	}}
	svc := NewService(src)
	filter := Filter{StartDate: "2024-01-01", EndDate: "2024-01-31"}

	report, err := svc.Report(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Statistics.TotalCount)
	assert.Equal(t, filter, report.Filter)

	// within the TTL: served from the cache
	now = now.Add(cacheTTL - time.Second)
	_, err = svc.Report(ctx, filter)
	require.NoError(t, err)
	_, err = svc.Records(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, src.queries)

	// another filter is another fetch
	_, err = svc.Report(ctx, Filter{StartDate: "2024-01-01", EndDate: "2024-01-31", Reasons: []string{"macet"}})
	require.NoError(t, err)
	assert.Equal(t, 2, src.queries)

	// expired
	now = now.Add(2 * time.Second)
	_, err = svc.Report(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, src.queries)

	// invalidated
	svc.Invalidate()
	_, err = svc.Report(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 4, src.queries)
}

func TestService_cacheEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)
	mockNow(t, &now)

	svc := NewService(&countingTardiness{}).(*service)
	january := Filter{StartDate: "2024-01-01", EndDate: "2024-01-31"}
	february := Filter{StartDate: "2024-02-01", EndDate: "2024-02-29"}
	march := Filter{StartDate: "2024-03-01", EndDate: "2024-03-31"}

	_, err := svc.Records(ctx, january)
	require.NoError(t, err)
	now = now.Add(cacheTTL / 2)
	_, err = svc.Records(ctx, february)
	require.NoError(t, err)
	assert.Len(t, svc.cache, 2)

	// january has expired, february has not
	now = now.Add(cacheTTL / 2)
	_, err = svc.Records(ctx, march)
	require.NoError(t, err)
	assert.Len(t, svc.cache, 2)
	assert.NotContains(t, svc.cache, january.recordFilter().Key())
	assert.Contains(t, svc.cache, february.recordFilter().Key())
	assert.Contains(t, svc.cache, march.recordFilter().Key())
}

func TestService_Normalize(t *testing.T) {
	now := time.Date(2024, 1, 20, 23, 30, 0, 0, time.UTC)
	mockNow(t, &now)

	svc := NewService(&countingTardiness{})
	var f Filter
	require.NoError(t, svc.Normalize(&f))
	assert.Equal(t, "2024-01-20", f.EndDate)
	assert.Equal(t, "2023-12-22", f.StartDate)
}
