// Package correlation links conversions back to the clicks that produced
// them through the shared correlation id.
package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// DefaultBatchSize is the number of correlation ids looked up per query.
const DefaultBatchSize = 500

// ClickLookup finds stored clicks by correlation id.
type ClickLookup interface {
	FindClicksByCID(ctx context.Context, cids []string) (map[string]model.ClickRef, error)
}

// Resolver resolves conversions to their originating clicks.
type Resolver struct {
	lookup    ClickLookup
	batchSize int
	logger    *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(lookup ClickLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup:    lookup,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "correlation.resolver"),
	}
}

// Resolve returns the stored click for every conversion whose correlation
// id is known, keyed by correlation id.
func (r *Resolver) Resolve(ctx context.Context, conversions []model.ConversionEvent) (map[string]model.ClickRef, error) {
	ids := uniqueCIDs(conversions)
	out := make(map[string]model.ClickRef, len(ids))

	for start := 0; start < len(ids); start += r.batchSize {
		end := min(start+r.batchSize, len(ids))
		found, err := r.lookup.FindClicksByCID(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("lookup clicks %d-%d: %w", start, end, err)
		}
		for id, ref := range found {
			out[id] = ref
		}
	}
	return out, nil
}

// Enrich fills click IP/UA into conversions from their resolved clicks,
// and the click time when the source did not report one. It returns how
// many conversions were changed.
func (r *Resolver) Enrich(ctx context.Context, conversions []model.ConversionEvent) (int, error) {
	refs, err := r.Resolve(ctx, conversions)
	if err != nil {
		return 0, err
	}

	enriched := 0
	for i := range conversions {
		c := &conversions[i]
		ref, ok := refs[c.CID]
		if !ok {
			continue
		}
		c.ClickIPAddress = ref.IPAddress
		c.ClickUserAgent = ref.UserAgent
		if c.ClickTime == nil && !ref.ClickTime.IsZero() {
			t := ref.ClickTime
			c.ClickTime = &t
		}
		enriched++
	}

	r.logger.Debug("conversions enriched",
		"conversions", len(conversions),
		"resolved", len(refs),
		"enriched", enriched,
	)
	return enriched, nil
}

func uniqueCIDs(conversions []model.ConversionEvent) []string {
	seen := make(map[string]struct{}, len(conversions))
	ids := make([]string, 0, len(conversions))
	for i := range conversions {
		id := conversions[i].CID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
