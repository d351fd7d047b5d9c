package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// clicksFromOffsets builds one click per offset (seconds into testDate),
// spread over three IPs and two media.
func clicksFromOffsets(offsets []int) []model.ClickEvent {
	events := make([]model.ClickEvent, len(offsets))
	for i, off := range offsets {
		events[i] = model.ClickEvent{
			ID:        fmt.Sprintf("c-%d", i),
			ClickTime: testDate.Add(time.Duration(off) * time.Second),
			MediaID:   fmt.Sprintf("m%d", off%2),
			ProgramID: "p1",
			IPAddress: fmt.Sprintf("10.0.0.%d", off%3),
			UserAgent: "UA",
		}
	}
	return events
}

func sumClicks(aggs []model.ClickAggregate) int64 {
	var total int64
	for _, a := range aggs {
		total += a.ClickCount
	}
	return total
}

func TestProperty_ReplaceIngestIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("ingesting the same batch twice leaves the same rollups", prop.ForAll(
		func(offsets []int) bool {
			ctx := context.Background()
			s := newTestStore(t)
			events := clicksFromOffsets(offsets)

			if _, err := s.IngestClicks(ctx, events, testDate, true); err != nil {
				return false
			}
			first, err := s.FetchClickAggregates(ctx, testDate)
			if err != nil {
				return false
			}
			if _, err := s.IngestClicks(ctx, events, testDate, true); err != nil {
				return false
			}
			second, err := s.FetchClickAggregates(ctx, testDate)
			if err != nil || len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i].ClickCount != second[i].ClickCount ||
					!first[i].FirstTime.Equal(second[i].FirstTime) ||
					!first[i].LastTime.Equal(second[i].LastTime) {
					return false
				}
			}
			return sumClicks(second) == int64(len(events))
		},
		gen.SliceOf(gen.IntRange(0, 86399)),
	))

	properties.TestingRun(t)
}

func TestProperty_MergeNeverDoubleCounts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("re-merging stored clicks adds nothing", prop.ForAll(
		func(offsets []int, repeats int) bool {
			ctx := context.Background()
			s := newTestStore(t)
			events := clicksFromOffsets(offsets)

			for i := 0; i < repeats; i++ {
				n, skip, err := s.MergeClicks(ctx, events, true)
				if err != nil {
					return false
				}
				if i == 0 && (n != len(events) || skip != 0) {
					return false
				}
				if i > 0 && (n != 0 || skip != len(events)) {
					return false
				}
			}

			aggs, err := s.FetchClickAggregates(ctx, testDate)
			if err != nil {
				return false
			}
			return sumClicks(aggs) == int64(len(events))
		},
		gen.SliceOf(gen.IntRange(0, 86399)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestProperty_RollupTimesBoundEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("first_time <= last_time and both are observed click times", prop.ForAll(
		func(offsets []int) bool {
			ctx := context.Background()
			s := newTestStore(t)
			events := clicksFromOffsets(offsets)

			if _, _, err := s.MergeClicks(ctx, events, false); err != nil {
				return false
			}
			rollups, err := s.FetchClickRollups(ctx, testDate)
			if err != nil {
				return false
			}

			seen := make(map[int64]bool, len(events))
			for _, e := range events {
				seen[e.ClickTime.UnixNano()] = true
			}
			for _, r := range rollups {
				if r.FirstTime.After(r.LastTime) {
					return false
				}
				if !seen[r.FirstTime.UnixNano()] || !seen[r.LastTime.UnixNano()] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 86399)),
	))

	properties.TestingRun(t)
}
