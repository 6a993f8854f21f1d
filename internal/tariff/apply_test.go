package tariff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iqstocker/entitlement-service/internal/models"
)

func TestRenew_AccumulatesTotals(t *testing.T) {
	pro := Limits(models.SubscriptionPro)
	l := &models.Limits{}

	Renew(l, models.SubscriptionPro)
	Renew(l, models.SubscriptionPro)

	assert.Equal(t, 2*pro.AnalyticsLimit, l.AnalyticsTotal)
	assert.Equal(t, 2*pro.ThemesLimit, l.ThemesTotal)
	assert.Equal(t, 2*pro.TopThemesLimit, l.TopThemesTotal)
}

func TestRenew_KeepsUsed(t *testing.T) {
	l := &models.Limits{AnalyticsUsed: 4, ThemesUsed: 7}

	Renew(l, models.SubscriptionPro)

	assert.Equal(t, 4, l.AnalyticsUsed)
	assert.Equal(t, 7, l.ThemesUsed)
}

func TestReplace_ForfeitsUnusedAllowance(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lastReq := now.Add(-48 * time.Hour)
	l := &models.Limits{
		AnalyticsTotal:     20,
		AnalyticsUsed:      5,
		ThemesTotal:        60,
		ThemesUsed:         12,
		LastThemeRequestAt: &lastReq,
	}

	Replace(l, models.SubscriptionUltra, now)

	ultra := Limits(models.SubscriptionUltra)
	assert.Equal(t, ultra.AnalyticsLimit, l.AnalyticsTotal)
	assert.Equal(t, ultra.ThemesLimit, l.ThemesTotal)
	assert.Zero(t, l.AnalyticsUsed)
	assert.Zero(t, l.ThemesUsed)
	assert.Zero(t, l.TopThemesUsed)
	assert.Equal(t, now, *l.CurrentTariffStartedAt)
	assert.Nil(t, l.LastThemeRequestAt)
}

func TestDowngrade_KeepsUsageHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	l := &models.Limits{
		AnalyticsTotal: 10,
		AnalyticsUsed:  9,
		ThemesTotal:    30,
		ThemesUsed:     25,
	}

	Downgrade(l, now)

	free := Limits(models.SubscriptionFree)
	assert.Equal(t, free.AnalyticsLimit, l.AnalyticsTotal)
	assert.Equal(t, free.ThemesLimit, l.ThemesTotal)
	assert.Equal(t, 9, l.AnalyticsUsed)
	assert.Equal(t, 25, l.ThemesUsed)
}

func TestLimits_UnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, Limits(models.SubscriptionFree), Limits(models.SubscriptionType("VIP")))
}

func TestLimits_TrialDuration(t *testing.T) {
	assert.Equal(t, 7, Limits(models.SubscriptionTestPro).TrialDurationDays)
	assert.Zero(t, Limits(models.SubscriptionPro).TrialDurationDays)
}
