package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jassnet/Fraudhunter/internal/detection"
	"github.com/jassnet/Fraudhunter/internal/model"
)

// Suspicious list paging bounds.
const (
	DefaultSuspiciousLimit = 500
	MaxSuspiciousLimit     = 10000
)

// SuspiciousInput selects one page of findings.
type SuspiciousInput struct {
	Unit model.EventUnit
	// Date is YYYY-MM-DD; empty picks the latest date with data.
	Date         string
	Limit        int
	Offset       int
	Search       string
	IncludeNames bool
}

// SuspiciousItem is one finding prepared for display.
type SuspiciousItem struct {
	model.IPUARollup
	Reasons               []string
	ReasonsFormatted      []string
	MinClickToConvSeconds *float64
	MaxClickToConvSeconds *float64
	Risk                  detection.Risk
	Details               []model.SuspiciousDetail
	MediaNames            []string
	ProgramNames          []string
	AffiliateNames        []string
}

// SuspiciousPage is a page of findings plus the total after search.
type SuspiciousPage struct {
	Date   string
	Items  []SuspiciousItem
	Total  int
	Limit  int
	Offset int
}

// Suspicious returns findings for one date, filtered by search and
// ordered by event count.
func (p *Pipeline) Suspicious(ctx context.Context, in SuspiciousInput) (*SuspiciousPage, error) {
	if in.Limit == 0 {
		in.Limit = DefaultSuspiciousLimit
	}
	if in.Limit < 1 || in.Limit > MaxSuspiciousLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxSuspiciousLimit)
	}
	if in.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrInvalidInput)
	}
	if in.Unit != model.UnitClicks && in.Unit != model.UnitConversions {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, in.Unit)
	}

	page := &SuspiciousPage{Items: []SuspiciousItem{}, Limit: in.Limit, Offset: in.Offset}
	date, ok, err := p.resolveDate(ctx, in.Date, in.Unit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return page, nil
	}
	page.Date = model.FormatDate(date)

	items, err := p.findItems(ctx, in.Unit, date)
	if err != nil {
		return nil, err
	}

	if in.IncludeNames && len(items) > 0 {
		if err := p.attachDetails(ctx, in.Unit, date, items); err != nil {
			return nil, err
		}
	}
	if in.Search != "" {
		items = filterItems(items, in.Search)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Total > items[j].Total })
	page.Total = len(items)

	if in.Offset < len(items) {
		end := min(in.Offset+in.Limit, len(items))
		page.Items = items[in.Offset:end]
	}
	return page, nil
}

func (p *Pipeline) findItems(ctx context.Context, unit model.EventUnit, date time.Time) ([]SuspiciousItem, error) {
	if unit == model.UnitClicks {
		findings, err := p.DetectClicks(ctx, date)
		if err != nil {
			return nil, err
		}
		items := make([]SuspiciousItem, len(findings))
		for i := range findings {
			items[i] = newItem(&findings[i], false)
		}
		return items, nil
	}

	findings, err := p.DetectConversions(ctx, date)
	if err != nil {
		return nil, err
	}
	items := make([]SuspiciousItem, len(findings))
	for i := range findings {
		items[i] = newItem(&findings[i].Finding, true)
		items[i].MinClickToConvSeconds = findings[i].MinClickToConvSeconds
		items[i].MaxClickToConvSeconds = findings[i].MaxClickToConvSeconds
	}
	return items, nil
}

func newItem(f *model.Finding, isConversion bool) SuspiciousItem {
	formatted := make([]string, len(f.Reasons))
	for i, r := range f.Reasons {
		formatted[i] = r.Describe()
	}
	return SuspiciousItem{
		IPUARollup:       f.IPUARollup,
		Reasons:          f.ReasonStrings(),
		ReasonsFormatted: formatted,
		Risk:             detection.Score(f.Reasons, f.Total, isConversion),
	}
}

func (p *Pipeline) attachDetails(ctx context.Context, unit model.EventUnit, date time.Time, items []SuspiciousItem) error {
	pairs := make([]model.IPUA, len(items))
	for i := range items {
		pairs[i] = items[i].Key()
	}
	details, err := p.stores.Masters.FetchSuspiciousDetails(ctx, unit, date, pairs)
	if err != nil {
		return fmt.Errorf("fetch suspicious details: %w", err)
	}

	for i := range items {
		d := details[items[i].Key()]
		if d == nil {
			d = []model.SuspiciousDetail{}
		}
		items[i].Details = d
		items[i].MediaNames = distinct(d, func(x model.SuspiciousDetail) string { return x.MediaName })
		items[i].ProgramNames = distinct(d, func(x model.SuspiciousDetail) string { return x.ProgramName })
		items[i].AffiliateNames = distinct(d, func(x model.SuspiciousDetail) string { return x.AffiliateName })
	}
	return nil
}

// filterItems keeps items whose IP, UA, or media/program name contains
// search, ignoring case.
func filterItems(items []SuspiciousItem, search string) []SuspiciousItem {
	needle := strings.ToLower(search)
	match := func(values ...string) bool {
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false
	}

	out := items[:0]
	for _, it := range items {
		if match(it.IPAddress, it.UserAgent) || match(it.MediaNames...) || match(it.ProgramNames...) {
			out = append(out, it)
		}
	}
	return out
}

func (p *Pipeline) resolveDate(ctx context.Context, raw string, unit model.EventUnit) (time.Time, bool, error) {
	if raw != "" {
		date, err := model.ParseDate(raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
		return date, true, nil
	}
	date, ok, err := p.stores.Dates.LatestDate(ctx, unit)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("resolve latest date: %w", err)
	}
	return date, ok, nil
}

func distinct(details []model.SuspiciousDetail, field func(model.SuspiciousDetail) string) []string {
	out := []string{}
	for _, d := range details {
		v := field(d)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}
