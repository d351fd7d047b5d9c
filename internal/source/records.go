package source

import (
	"fmt"
	"time"

	"github.com/jassnet/Fraudhunter/internal/model"
)

// toClick maps a source record to a click event.
func toClick(raw []byte, rec record, loc *time.Location) (model.ClickEvent, error) {
	clickTime, err := ParseTime(rec.pick(clickTimeFields), loc)
	if err != nil {
		return model.ClickEvent{}, fmt.Errorf("click time: %w", err)
	}

	return model.ClickEvent{
		ID:         rec.str(clickIDFields),
		ClickTime:  clickTime,
		MediaID:    rec.str(mediaIDFields),
		ProgramID:  rec.str(programIDFields),
		IPAddress:  rec.str(ipFields),
		UserAgent:  rec.str(userAgentFields),
		Referrer:   rec.str(referrerFields),
		RawPayload: raw,
	}, nil
}

// toConversion maps a source record to a conversion event. A click time that
// is present but unparseable is dropped rather than failing the record.
func toConversion(raw []byte, rec record, loc *time.Location) (model.ConversionEvent, error) {
	conversionTime, err := ParseTime(rec.pick(conversionTimeFields), loc)
	if err != nil {
		return model.ConversionEvent{}, fmt.Errorf("conversion time: %w", err)
	}

	var clickTime *time.Time
	if v := rec.pick(conversionClickTimeFields); v != nil {
		if t, err := ParseTime(v, loc); err == nil {
			clickTime = &t
		}
	}

	return model.ConversionEvent{
		ID:                rec.str(conversionIDFields),
		CID:               rec.str(conversionCIDFields),
		ConversionTime:    conversionTime,
		ClickTime:         clickTime,
		MediaID:           rec.str(conversionMediaFields),
		ProgramID:         rec.str(conversionProgramFields),
		UserID:            rec.str(conversionUserFields),
		PostbackIPAddress: rec.str(postbackIPFields),
		PostbackUserAgent: rec.str(postbackUAFields),
		EntryIPAddress:    rec.str(entryIPFields),
		EntryUserAgent:    rec.str(entryUAFields),
		State:             rec.str(stateFields),
		RawPayload:        raw,
	}, nil
}

func toMedia(rec record, now time.Time) model.Media {
	return model.Media{
		ID:        rec.str([]string{"id"}),
		Name:      rec.str([]string{"name"}),
		UserID:    rec.str([]string{"user"}),
		State:     rec.str(stateFields),
		UpdatedAt: now,
	}
}

func toPromotion(rec record, now time.Time) model.Promotion {
	return model.Promotion{
		ID:        rec.str([]string{"id"}),
		Name:      rec.str([]string{"name"}),
		State:     rec.str(stateFields),
		UpdatedAt: now,
	}
}

func toAffiliate(rec record, now time.Time) model.Affiliate {
	return model.Affiliate{
		ID:        rec.str([]string{"id"}),
		Name:      rec.str([]string{"name"}),
		Company:   rec.str([]string{"company"}),
		State:     rec.str(stateFields),
		UpdatedAt: now,
	}
}
