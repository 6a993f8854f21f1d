package tariff

import (
	"time"

	"github.com/iqstocker/entitlement-service/internal/models"
)

// Renew прибавляет квоты тарифа к текущим total-счетчикам.
// Продление не сбрасывает used: неизрасходованный остаток накапливается.
func Renew(l *models.Limits, t models.SubscriptionType) {
	q := Limits(t)
	l.AnalyticsTotal += q.AnalyticsLimit
	l.ThemesTotal += q.ThemesLimit
	l.TopThemesTotal += q.TopThemesLimit
}

// Replace заменяет лимиты на квоты нового тарифа при смене тарифа.
// used обнуляется — неизрасходованный остаток прежнего тарифа сгорает,
// якорь кулдауна сбрасывается на now.
func Replace(l *models.Limits, t models.SubscriptionType, now time.Time) {
	q := Limits(t)
	l.AnalyticsTotal = q.AnalyticsLimit
	l.AnalyticsUsed = 0
	l.ThemesTotal = q.ThemesLimit
	l.ThemesUsed = 0
	l.TopThemesTotal = q.TopThemesLimit
	l.TopThemesUsed = 0
	l.ThemeCooldownDays = q.ThemeCooldownDays
	l.CurrentTariffStartedAt = &now
	l.LastThemeRequestAt = nil
}

// Downgrade заменяет total-счетчики на квоты FREE при истечении подписки.
// used сохраняется: это история использования, а не остаток.
func Downgrade(l *models.Limits, now time.Time) {
	q := Limits(models.SubscriptionFree)
	l.AnalyticsTotal = q.AnalyticsLimit
	l.ThemesTotal = q.ThemesLimit
	l.TopThemesTotal = q.TopThemesLimit
	l.ThemeCooldownDays = q.ThemeCooldownDays
	l.CurrentTariffStartedAt = &now
}
