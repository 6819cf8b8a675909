package papers

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pyqhub/pyqbot/core/logger"
)

const indexCacheKey = "sheet.index"

// IndexSource fetches the complete paper index.
type IndexSource interface {
	FetchAll(ctx context.Context) ([]Paper, error)
}

// CachedFinder serves lookups from a cached copy of the sheet index so a
// burst of queries does not hammer the Sheets API.
type CachedFinder struct {
	source IndexSource
	cache  *gocache.Cache
}

// NewCachedFinder caches the index for ttl. A ttl of zero or less disables
// caching and every lookup refetches.
func NewCachedFinder(source IndexSource, ttl time.Duration) *CachedFinder {
	f := &CachedFinder{source: source}
	if ttl > 0 {
		f.cache = gocache.New(ttl, 2*ttl)
	}
	return f
}

func (f *CachedFinder) index(ctx context.Context) ([]Paper, error) {
	if f.cache == nil {
		return f.source.FetchAll(ctx)
	}
	if cached, ok := f.cache.Get(indexCacheKey); ok {
		rows := cached.([]Paper)
		logger.Debug(ctx, "service.papers", "sheet.cache.hit",
			slog.Int("rows", len(rows)))
		return rows, nil
	}
	rows, err := f.source.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	f.cache.SetDefault(indexCacheKey, rows)
	return rows, nil
}

// Find filters the cached index down to one course and semester.
func (f *CachedFinder) Find(ctx context.Context, course, semester string) ([]Paper, error) {
	rows, err := f.index(ctx)
	if err != nil {
		return nil, err
	}
	return filterPapers(rows, course, semester), nil
}
