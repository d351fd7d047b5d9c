package source

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Candidate field names per logical attribute, tried in order. The log
// source has renamed fields across API versions.
var (
	clickTimeFields = []string{"click_time", "access_time", "accessed_at", "regist_unix", "time", "created_at"}
	clickIDFields   = []string{"track_cid", "id"}
	mediaIDFields   = []string{"media_id", "mediaId"}
	programIDFields = []string{"program_id", "programId"}
	ipFields        = []string{"ipaddress", "ip", "ip_address"}
	userAgentFields = []string{"useragent", "ua", "user_agent"}
	referrerFields  = []string{"referrer", "referer"}

	conversionTimeFields      = []string{"regist_unix", "regist_time", "created_at"}
	conversionClickTimeFields = []string{"click_unix", "click_time"}
	conversionCIDFields       = []string{"check_log_raw", "cid"}
	conversionIDFields        = []string{"id"}
	conversionMediaFields     = []string{"media", "media_id"}
	conversionProgramFields   = []string{"promotion", "program_id"}
	conversionUserFields      = []string{"user", "user_id"}
	postbackIPFields          = []string{"ipaddress", "ip"}
	postbackUAFields          = []string{"useragent", "ua"}
	entryIPFields             = []string{"entry_ipaddress"}
	entryUAFields             = []string{"entry_useragent"}
	stateFields               = []string{"state"}
)

// record is one decoded source row.
type record map[string]any

// pick returns the first candidate value that is present and not empty.
func (r record) pick(fields []string) any {
	for _, field := range fields {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

// str returns the first candidate value rendered as a string, or "".
func (r record) str(fields []string) string {
	switch v := r.pick(fields).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
