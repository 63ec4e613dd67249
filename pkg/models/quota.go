package models

import "time"

// UnlimitedRemaining is the Remaining sentinel reported when an identity has
// no daily cap (limit 0).
const UnlimitedRemaining = -1

// QuotaInfo describes an identity's daily usage after an admission check or a
// read-only status query.
type QuotaInfo struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
