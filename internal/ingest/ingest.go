// Package ingest pulls paged events from the log source and hands them to
// the aggregation store, either replacing a whole date or merging a window.
package ingest

import (
	"context"
	"fmt"

	"github.com/jassnet/Fraudhunter/internal/source"
)

// Ingestion modes, used as log fields and metric labels.
const (
	ModeReplace = "replace"
	ModeMerge   = "merge"
)

// Options configures an ingestor.
type Options struct {
	// PageSize is the number of records requested per page.
	PageSize int
	// StoreRaw keeps raw click rows on replace-ingest. Merge-ingest always
	// keeps them: its dedup and click correlation read the raw table.
	StoreRaw bool
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return source.DefaultPageSize
	}
	return o.PageSize
}

// fetchPage fetches the given 1-based page.
type fetchPage[T any] func(ctx context.Context, page, limit int) (source.Page[T], error)

// collect pages through fetch until the source returns an empty or short
// page. A short page is judged by records received, not records kept, so
// pages thinned by time filtering or dropped records do not end early.
func collect[T any](ctx context.Context, pageSize int, fetch fetchPage[T]) ([]T, int, error) {
	var all []T
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, page - 1, err
		}

		p, err := fetch(ctx, page, pageSize)
		if err != nil {
			return nil, page, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, p.Items...)

		if p.Received == 0 || p.Received < pageSize {
			return all, page, nil
		}
	}
}
