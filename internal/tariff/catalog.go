// Package tariff содержит справочник тарифов и чистые функции пересчета
// лимитов при продлении, смене тарифа и переходе на FREE.
package tariff

import "github.com/iqstocker/entitlement-service/internal/models"

// Quotas квоты и параметры тарифа.
// TrialDurationDays заполнен только для TEST_PRO.
type Quotas struct {
	AnalyticsLimit    int
	ThemesLimit       int
	TopThemesLimit    int
	ThemeCooldownDays int
	TrialDurationDays int
}

var catalog = map[models.SubscriptionType]Quotas{
	models.SubscriptionFree: {
		AnalyticsLimit:    1,
		ThemesLimit:       3,
		TopThemesLimit:    3,
		ThemeCooldownDays: 7,
	},
	models.SubscriptionTestPro: {
		AnalyticsLimit:    3,
		ThemesLimit:       10,
		TopThemesLimit:    10,
		ThemeCooldownDays: 7,
		TrialDurationDays: 7,
	},
	models.SubscriptionPro: {
		AnalyticsLimit:    10,
		ThemesLimit:       30,
		TopThemesLimit:    30,
		ThemeCooldownDays: 7,
	},
	models.SubscriptionUltra: {
		AnalyticsLimit:    30,
		ThemesLimit:       100,
		TopThemesLimit:    100,
		ThemeCooldownDays: 7,
	},
}

// Limits возвращает квоты тарифа. Неизвестный тариф трактуется как FREE,
// чтобы ошибка данных не выдавала лишние лимиты.
func Limits(t models.SubscriptionType) Quotas {
	if q, ok := catalog[t]; ok {
		return q
	}
	return catalog[models.SubscriptionFree]
}
