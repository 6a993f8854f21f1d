// Package jwt реализует выпуск и проверку JWT токенов для клиентов
// read-only API. Токены выдаются внутренним сервисам (бот, админ-панель),
// а не конечным пользователям.
package jwt

import (
	"time"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	// GenerateToken выпускает токен для клиента с заданной ролью.
	GenerateToken(client, role string) (string, error)
	// ParseToken проверяет подпись и срок токена, возвращает его claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует Maker на секретном ключе HMAC и фиксированном TTL.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewJWTMaker создает новый экземпляр MakerImpl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
