package model

import "time"

// Media is a media (publisher site) master record.
type Media struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id,omitempty"`
	State     string    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Promotion is a program (advertiser campaign) master record.
type Promotion struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Affiliate is a partner (media owner) master record.
type Affiliate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company,omitempty"`
	State     string    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MasterCounts summarizes the master tables.
type MasterCounts struct {
	Media      int64      `json:"media_count"`
	Promotions int64      `json:"promotion_count"`
	Affiliates int64      `json:"user_count"`
	LastSynced *time.Time `json:"last_synced_at,omitempty"`
}

// SuspiciousDetail is one media/program breakdown row of a flagged IP/UA,
// joined with master names. Names fall back to ids when unknown.
type SuspiciousDetail struct {
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
	MediaID       string `json:"media_id"`
	ProgramID     string `json:"program_id"`
	Count         int64  `json:"count"`
	MediaName     string `json:"media_name"`
	ProgramName   string `json:"program_name"`
	AffiliateName string `json:"affiliate_name,omitempty"`
}
