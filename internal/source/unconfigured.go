package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// Unconfigured stands in for the client when credentials are missing, so
// the API can start and report the problem. Every fetch returns Err.
type Unconfigured struct {
	Err error
}

func (u Unconfigured) err() error {
	return fmt.Errorf("log source not configured: %w", u.Err)
}

// FetchClicks returns the configuration error.
func (u Unconfigured) FetchClicks(ctx context.Context, date time.Time, page, limit int) (Page[model.ClickEvent], error) {
	return Page[model.ClickEvent]{}, u.err()
}

// FetchClicksInRange returns the configuration error.
func (u Unconfigured) FetchClicksInRange(ctx context.Context, start, end time.Time, page, limit int) (Page[model.ClickEvent], error) {
	return Page[model.ClickEvent]{}, u.err()
}

// FetchConversions returns the configuration error.
func (u Unconfigured) FetchConversions(ctx context.Context, date time.Time, page, limit int) (Page[model.ConversionEvent], error) {
	return Page[model.ConversionEvent]{}, u.err()
}

// FetchConversionsInRange returns the configuration error.
func (u Unconfigured) FetchConversionsInRange(ctx context.Context, start, end time.Time, page, limit int) (Page[model.ConversionEvent], error) {
	return Page[model.ConversionEvent]{}, u.err()
}

// FetchAllMedia returns the configuration error.
func (u Unconfigured) FetchAllMedia(ctx context.Context) ([]model.Media, error) {
	return nil, u.err()
}

// FetchAllPromotions returns the configuration error.
func (u Unconfigured) FetchAllPromotions(ctx context.Context) ([]model.Promotion, error) {
	return nil, u.err()
}

// FetchAllAffiliates returns the configuration error.
func (u Unconfigured) FetchAllAffiliates(ctx context.Context) ([]model.Affiliate, error) {
	return nil, u.err()
}
