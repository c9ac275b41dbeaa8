package imagefront_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantari/imagefront"
)

func int64Ptr(v int64) *int64 { return &v }

func TestCheckQuota_UnlimitedByDefault(t *testing.T) {
	c := imagefront.Credential{ID: "sk-test", Enabled: true}
	c.Usage = imagefront.Usage{Total: 100000, Daily: 100000, Monthly: 100000}

	ok, reason := c.CheckQuota()
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCheckQuota_DailyBoundary(t *testing.T) {
	c := imagefront.Credential{ID: "sk-test", Enabled: true, DailyLimit: int64Ptr(2)}

	c.Usage.Daily = 1
	ok, _ := c.CheckQuota()
	assert.True(t, ok, "one below the limit must pass")

	c.Usage.Daily = 2
	ok, reason := c.CheckQuota()
	assert.False(t, ok, "at the limit must block")
	assert.Contains(t, reason, "2")
	assert.Contains(t, reason, "daily")
}

func TestCheckQuota_ZeroLimitBlocksImmediately(t *testing.T) {
	c := imagefront.Credential{ID: "sk-test", Enabled: true, DailyLimit: int64Ptr(0)}

	ok, reason := c.CheckQuota()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily limit reached (0)")
}

func TestCheckQuota_DisabledWinsOverQuota(t *testing.T) {
	c := imagefront.Credential{ID: "sk-test", Enabled: false, DailyLimit: int64Ptr(10)}

	ok, reason := c.CheckQuota()
	assert.False(t, ok)
	assert.Equal(t, "credential is disabled", reason)
}

func TestCheckQuota_MonthlyBoundary(t *testing.T) {
	c := imagefront.Credential{ID: "sk-test", Enabled: true, MonthlyLimit: int64Ptr(5)}
	c.Usage.Monthly = 5

	ok, reason := c.CheckQuota()
	assert.False(t, ok)
	assert.Contains(t, reason, "monthly limit reached (5)")
}

func TestRecordUsage_IncrementsAllCounters(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := imagefront.Credential{ID: "sk-test", Enabled: true}

	c.RecordUsage(now)
	c.RecordUsage(now)

	assert.Equal(t, int64(2), c.Usage.Total)
	assert.Equal(t, int64(2), c.Usage.Daily)
	assert.Equal(t, int64(2), c.Usage.Monthly)
	assert.Equal(t, now.Unix(), c.LastUsedAt)
}

func TestResetDaily_KeepsTotalAndMonthly(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := imagefront.Credential{ID: "sk-test", Enabled: true}
	c.Usage = imagefront.Usage{Total: 7, Daily: 3, Monthly: 5}

	c.ResetDaily(now)

	assert.Equal(t, int64(0), c.Usage.Daily)
	assert.Equal(t, int64(7), c.Usage.Total)
	assert.Equal(t, int64(5), c.Usage.Monthly)
	assert.Equal(t, now.Unix(), c.LastDailyReset)
}

func TestRefreshWindows_LazyResetIdempotent(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := imagefront.Credential{ID: "sk-test", Enabled: true}
	c.Usage = imagefront.Usage{Total: 4, Daily: 4, Monthly: 4}
	c.LastDailyReset = start.Unix()
	c.LastMonthlyReset = start.Unix()

	// One second short of the window: nothing happens.
	almost := start.Add(imagefront.DailyWindow - time.Second)
	assert.False(t, imagefront.RefreshWindows(&c, almost))
	assert.Equal(t, int64(4), c.Usage.Daily)

	// Exactly at the window boundary the daily counter resets.
	due := start.Add(imagefront.DailyWindow)
	assert.True(t, imagefront.RefreshWindows(&c, due))
	assert.Equal(t, int64(0), c.Usage.Daily)
	assert.Equal(t, int64(4), c.Usage.Monthly)
	assert.Equal(t, due.Unix(), c.LastDailyReset)

	// Applying it again at the same instant is a no-op.
	assert.False(t, imagefront.RefreshWindows(&c, due))
}

func TestRefreshWindows_MonthlyResets(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := imagefront.Credential{ID: "sk-test", Enabled: true}
	c.Usage = imagefront.Usage{Total: 9, Daily: 1, Monthly: 9}
	c.LastDailyReset = start.Unix()
	c.LastMonthlyReset = start.Unix()

	due := start.Add(imagefront.MonthlyWindow)
	require.True(t, imagefront.RefreshWindows(&c, due))
	assert.Equal(t, int64(0), c.Usage.Monthly)
	assert.Equal(t, int64(0), c.Usage.Daily, "daily window elapsed too")
	assert.Equal(t, int64(9), c.Usage.Total)
}

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"12345678", "****"},
		{"123456789", "1234...6789"},
		{"123456789012", "1234...9012"},
		{"sk-abcdefghijklmnop", "sk-abcde...mnop"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, imagefront.MaskSecret(tc.in), "input %q", tc.in)
	}
}

func TestView_MasksSecretAndDerivesRemaining(t *testing.T) {
	c := imagefront.Credential{
		ID:           "sk-supersecretvalue123",
		DisplayName:  "team-a",
		Enabled:      true,
		DailyLimit:   int64Ptr(10),
		MonthlyLimit: int64Ptr(3),
	}
	c.Usage = imagefront.Usage{Daily: 4, Monthly: 5}

	v := c.View()
	assert.NotContains(t, v.ID, "supersecretvalue")
	assert.Equal(t, c.MaskedID(), v.ID)
	require.NotNil(t, v.DailyRemaining)
	assert.Equal(t, int64(6), *v.DailyRemaining)
	require.NotNil(t, v.MonthlyRemaining)
	assert.Equal(t, int64(0), *v.MonthlyRemaining, "remaining clamps at zero")
}

func TestView_UnlimitedHasNilRemaining(t *testing.T) {
	c := imagefront.Credential{ID: "sk-supersecretvalue123", Enabled: true}
	v := c.View()
	assert.Nil(t, v.DailyRemaining)
	assert.Nil(t, v.MonthlyRemaining)
}

func TestClone_IsIndependent(t *testing.T) {
	c := imagefront.Credential{
		ID:               "sk-test",
		DailyLimit:       int64Ptr(5),
		BoundCredentials: []string{"tok-1"},
	}

	clone := c.Clone()
	clone.BoundCredentials[0] = "tok-other"
	*clone.DailyLimit = 99

	assert.Equal(t, "tok-1", c.BoundCredentials[0])
	assert.Equal(t, int64(5), *c.DailyLimit)
}
