// Package trafficfilter holds the browser and datacenter heuristics shared
// by the SQL rollup queries and the in-memory detector checks.
//
// Both filters are advisory: a bot spoofing a browser UA passes, and a real
// user behind a listed cloud range is excluded.
package trafficfilter

import "strings"

// BrowserTokens are lowercase substrings that identify a browser UA.
var BrowserTokens = []string{
	"chrome/",
	"firefox/",
	"safari/",
	"edg/",
	"edge/",
	"opera/",
	"opr/",
	"msie ",
	"trident/",
}

// BotTokens are lowercase substrings of automation clients and crawlers.
var BotTokens = []string{
	"bot",
	"crawler",
	"spider",
	"curl",
	"python",
	"axios",
	"node-fetch",
	"go-http-client",
	"java/",
	"apache-httpclient",
	"libwww-perl",
	"wget",
	"headlesschrome",
}

// DatacenterPrefixes are IPv4 string prefixes of well-known cloud ranges.
var DatacenterPrefixes = []string{
	"3.",
	"13.",
	"18.",
	"20.",
	"23.",
	"34.",
	"35.",
	"40.",
	"45.",
	"51.",
	"52.",
	"54.",
	"64.",
	"66.",
	"74.125.",
	"104.",
	"108.",
	"142.250.",
	"142.251.",
	"157.",
	"168.63.",
	"172.253.",
	"173.194.",
	"209.85.",
	"216.58.",
	"216.239.",
}

// Options selects which filters apply.
type Options struct {
	BrowserOnly         bool
	ExcludeDatacenterIP bool
}

// Enabled reports whether any filter is on.
func (o Options) Enabled() bool {
	return o.BrowserOnly || o.ExcludeDatacenterIP
}

// Allow reports whether traffic from ip/ua passes the enabled filters.
func (o Options) Allow(ip, ua string) bool {
	if o.BrowserOnly && !IsBrowserUA(ua) {
		return false
	}
	if o.ExcludeDatacenterIP && IsDatacenterIP(ip) {
		return false
	}
	return true
}

// IsBrowserUA reports whether ua carries a browser token and no bot token.
func IsBrowserUA(ua string) bool {
	lower := strings.ToLower(ua)
	return containsAny(lower, BrowserTokens) && !containsAny(lower, BotTokens)
}

// IsDatacenterIP reports whether ip starts with a listed datacenter prefix.
func IsDatacenterIP(ip string) bool {
	for _, prefix := range DatacenterPrefixes {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return false
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
