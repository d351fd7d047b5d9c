package testutil

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// Factory builds realistic events from a seeded faker so tests are
// reproducible.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory creates a Factory seeded with seed.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// IP returns a random IPv4 address.
func (f *Factory) IP() string {
	return f.faker.IPv4Address()
}

// UserAgent returns a random user agent.
func (f *Factory) UserAgent() string {
	return f.faker.UserAgent()
}

// Click returns a click at t with random ids, IP and UA.
func (f *Factory) Click(t time.Time) model.ClickEvent {
	return model.ClickEvent{
		ID:        f.faker.UUID(),
		ClickTime: t,
		MediaID:   f.faker.Numerify("m###"),
		ProgramID: f.faker.Numerify("p###"),
		IPAddress: f.IP(),
		UserAgent: f.UserAgent(),
		Referrer:  f.faker.URL(),
	}
}

// ClickFrom returns a click at t from ip/ua on media/program.
func (f *Factory) ClickFrom(t time.Time, ip, ua, media, program string) model.ClickEvent {
	c := f.Click(t)
	c.IPAddress = ip
	c.UserAgent = ua
	c.MediaID = media
	c.ProgramID = program
	return c
}

// Conversion returns a conversion at t whose entry IP/UA are ip/ua and
// whose click happened gap earlier. A zero gap leaves the click time unset.
func (f *Factory) Conversion(t time.Time, ip, ua string, gap time.Duration) model.ConversionEvent {
	c := model.ConversionEvent{
		ID:                f.faker.UUID(),
		CID:               f.faker.UUID(),
		ConversionTime:    t,
		MediaID:           f.faker.Numerify("m###"),
		ProgramID:         f.faker.Numerify("p###"),
		UserID:            f.faker.Numerify("u###"),
		PostbackIPAddress: f.IP(),
		PostbackUserAgent: "postback/1.0",
		EntryIPAddress:    ip,
		EntryUserAgent:    ua,
	}
	if gap > 0 {
		clickTime := t.Add(-gap)
		c.ClickTime = &clickTime
	}
	return c
}
