// Package imagefront manages the credential pools that front an
// OpenAI-compatible image generation backend: client-facing API keys and
// rotated upstream session tokens. Both pools share one record shape, one
// store contract, and one quota model; the differences are configuration.
package imagefront

import (
	"fmt"
	"time"
)

// Usage holds the monotonically increasing request counters for a credential.
// Daily and Monthly are zeroed by window resets; Total never decreases.
type Usage struct {
	Total   int64 `json:"total"`
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// Credential is one entry in a pool: a client API key or an upstream token.
// The ID is the secret itself and is immutable after creation.
// All timestamps are unix seconds.
type Credential struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"displayName"`
	CreatedAt        int64    `json:"createdAt"`
	Enabled          bool     `json:"enabled"`
	DailyLimit       *int64   `json:"dailyLimit"`
	MonthlyLimit     *int64   `json:"monthlyLimit"`
	Usage            Usage    `json:"usage"`
	LastUsedAt       int64    `json:"lastUsedAt"`
	LastDailyReset   int64    `json:"lastDailyReset"`
	LastMonthlyReset int64    `json:"lastMonthlyReset"`
	BoundCredentials []string `json:"boundSecondaryCredentials"`
	Note             string   `json:"note"`
}

// CheckQuota reports whether the credential may serve one more request.
// The returned reason is safe to show to the caller that owns the credential.
// Callers must apply due window resets (RefreshWindows) before checking,
// otherwise a credential whose window already elapsed reads as exhausted.
func (c Credential) CheckQuota() (bool, string) {
	if !c.Enabled {
		return false, "credential is disabled"
	}
	if c.DailyLimit != nil && c.Usage.Daily >= *c.DailyLimit {
		return false, fmt.Sprintf("daily limit reached (%d)", *c.DailyLimit)
	}
	if c.MonthlyLimit != nil && c.Usage.Monthly >= *c.MonthlyLimit {
		return false, fmt.Sprintf("monthly limit reached (%d)", *c.MonthlyLimit)
	}
	return true, ""
}

// RecordUsage counts one request against the credential. Call only after
// CheckQuota passed within the same store-level critical section.
func (c *Credential) RecordUsage(now time.Time) {
	c.Usage.Total++
	c.Usage.Daily++
	c.Usage.Monthly++
	c.LastUsedAt = now.Unix()
}

// ResetDaily zeroes the daily counter and restamps the daily window anchor.
func (c *Credential) ResetDaily(now time.Time) {
	c.Usage.Daily = 0
	c.LastDailyReset = now.Unix()
}

// ResetMonthly zeroes the monthly counter and restamps the monthly window anchor.
func (c *Credential) ResetMonthly(now time.Time) {
	c.Usage.Monthly = 0
	c.LastMonthlyReset = now.Unix()
}

// MaskedID returns the secret with the middle elided. The full secret is
// visible only in the Create/Adopt return value; every other surface
// (listings, logs, status) goes through this.
func (c Credential) MaskedID() string {
	return MaskSecret(c.ID)
}

// MaskSecret elides the middle of a secret string for display.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	if len(s) <= 12 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return s[:8] + "..." + s[len(s)-4:]
}

// Clone returns a deep copy; BoundCredentials is the only reference field.
func (c Credential) Clone() Credential {
	out := c
	if c.BoundCredentials != nil {
		out.BoundCredentials = append([]string(nil), c.BoundCredentials...)
	}
	if c.DailyLimit != nil {
		v := *c.DailyLimit
		out.DailyLimit = &v
	}
	if c.MonthlyLimit != nil {
		v := *c.MonthlyLimit
		out.MonthlyLimit = &v
	}
	return out
}

// View is the externally observable representation of a credential,
// with the secret masked and remaining quota derived.
type View struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	Enabled          bool   `json:"enabled"`
	CreatedAt        int64  `json:"createdAt"`
	LastUsedAt       int64  `json:"lastUsedAt"`
	Usage            Usage  `json:"usage"`
	DailyLimit       *int64 `json:"dailyLimit"`
	MonthlyLimit     *int64 `json:"monthlyLimit"`
	DailyRemaining   *int64 `json:"dailyRemaining"`
	MonthlyRemaining *int64 `json:"monthlyRemaining"`
	BoundCount       int    `json:"boundCount"`
	Note             string `json:"note"`
}

// View returns the masked representation of the credential.
func (c Credential) View() View {
	v := View{
		ID:           c.MaskedID(),
		DisplayName:  c.DisplayName,
		Enabled:      c.Enabled,
		CreatedAt:    c.CreatedAt,
		LastUsedAt:   c.LastUsedAt,
		Usage:        c.Usage,
		DailyLimit:   c.DailyLimit,
		MonthlyLimit: c.MonthlyLimit,
		BoundCount:   len(c.BoundCredentials),
		Note:         c.Note,
	}
	if c.DailyLimit != nil {
		rem := max(*c.DailyLimit-c.Usage.Daily, 0)
		v.DailyRemaining = &rem
	}
	if c.MonthlyLimit != nil {
		rem := max(*c.MonthlyLimit-c.Usage.Monthly, 0)
		v.MonthlyRemaining = &rem
	}
	return v
}
