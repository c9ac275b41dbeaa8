package imagefront

import "time"

// Quota windows are rolling fixed durations anchored to the last reset
// timestamp, not calendar boundaries. The monthly window is a fixed 30 days.
const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// RefreshWindows applies any due lazy window resets to c and reports whether
// anything changed. There is no background scheduler; every validation and
// selection call is a reset opportunity. Applying it twice at the same
// instant is a no-op, which is what makes concurrent resets safe.
func RefreshWindows(c *Credential, now time.Time) bool {
	changed := false
	if DailyWindowDue(*c, now) {
		c.ResetDaily(now)
		changed = true
	}
	if MonthlyWindowDue(*c, now) {
		c.ResetMonthly(now)
		changed = true
	}
	return changed
}

// DailyWindowDue reports whether the daily window has fully elapsed.
func DailyWindowDue(c Credential, now time.Time) bool {
	return now.Unix()-c.LastDailyReset >= int64(DailyWindow/time.Second)
}

// MonthlyWindowDue reports whether the monthly window has fully elapsed.
func MonthlyWindowDue(c Credential, now time.Time) bool {
	return now.Unix()-c.LastMonthlyReset >= int64(MonthlyWindow/time.Second)
}
