package models

import "time"

// QuotaKind вид квоты, по которой ведется учет использования.
type QuotaKind string

// Виды квот.
const (
	QuotaAnalytics QuotaKind = "analytics"
	QuotaThemes    QuotaKind = "themes"
	QuotaTopThemes QuotaKind = "top_themes"
)

// Limits хранит счетчики квот пользователя: total — выдано, used — израсходовано.
// total при продлении тарифа прибавляется, при смене тарифа заменяется.
type Limits struct {
	ID                     int64
	UserID                 int64
	AnalyticsTotal         int
	AnalyticsUsed          int
	ThemesTotal            int
	ThemesUsed             int
	TopThemesTotal         int
	TopThemesUsed          int
	ThemeCooldownDays      int
	CurrentTariffStartedAt *time.Time
	LastThemeRequestAt     *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Remaining возвращает остаток по указанной квоте, не меньше нуля.
func (l *Limits) Remaining(kind QuotaKind) int {
	var total, used int
	switch kind {
	case QuotaAnalytics:
		total, used = l.AnalyticsTotal, l.AnalyticsUsed
	case QuotaThemes:
		total, used = l.ThemesTotal, l.ThemesUsed
	case QuotaTopThemes:
		total, used = l.TopThemesTotal, l.TopThemesUsed
	}
	if remaining := total - used; remaining > 0 {
		return remaining
	}
	return 0
}
