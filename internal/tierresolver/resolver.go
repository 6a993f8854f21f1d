// Package tierresolver определяет тариф по свободному тексту названия
// продукта из платежного вебхука. Провайдер передает название подписки
// или товара как есть, поэтому распознавание вынесено в отдельный адаптер
// с явным исходом ErrUnresolved — ядро работает только с типизированным тарифом.
package tierresolver

import (
	"errors"
	"strings"

	"github.com/iqstocker/entitlement-service/internal/models"
)

// ErrUnresolved возвращается, когда ни одно из названий не содержит
// ключевого слова тарифа.
var ErrUnresolved = errors.New("subscription tier unresolved")

// Resolve ищет ключевое слово тарифа в переданных названиях.
// ULTRA проверяется раньше PRO, иначе "ULTRA PRO MAX" распознался бы как PRO.
// Префиксы тестовых данных ("TEST", "ТЕСТ") вырезаются перед поиском.
func Resolve(names ...string) (models.SubscriptionType, error) {
	joined := strings.ToUpper(strings.Join(names, " "))
	joined = strings.ReplaceAll(joined, "TEST", "")
	joined = strings.ReplaceAll(joined, "ТЕСТ", "")
	joined = strings.Join(strings.Fields(joined), " ")

	if strings.Contains(joined, "ULTRA") {
		return models.SubscriptionUltra, nil
	}
	if strings.Contains(joined, "PRO") {
		return models.SubscriptionPro, nil
	}

	// Повторный проход по исходным полям до очистки: вдруг ключевое
	// слово пострадало от вырезания префикса.
	for _, name := range names {
		upper := strings.ToUpper(name)
		if strings.Contains(upper, "ULTRA") {
			return models.SubscriptionUltra, nil
		}
		if strings.Contains(upper, "PRO") {
			return models.SubscriptionPro, nil
		}
	}
	return "", ErrUnresolved
}
