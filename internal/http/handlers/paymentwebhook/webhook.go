// Package paymentwebhook принимает вебхуки платежного провайдера Tribute.
// Подпись проверяется по заголовку trbt-signature (hex HMAC-SHA256 тела),
// разбор события и применение платежа делегируются сервису платежей.
package paymentwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/iqstocker/entitlement-service/internal/lib/sl"
	"github.com/iqstocker/entitlement-service/internal/metrics"
)

// ErrRejected терминальная ошибка обработки события: повторная доставка
// не поможет, провайдеру отвечаем 200, чтобы остановить ретраи.
var ErrRejected = errors.New("webhook event rejected")

// Service описывает интерфейс сервиса обработки событий вебхука.
type Service interface {
	ProcessWebhookEvent(ctx context.Context, payload *Payload) error
}

// Handler обработчик вебхуков Tribute.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// New создает обработчик вебхуков.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// Payload тело вебхука Tribute. Провайдер кладет данные то в payload,
// то на верхний уровень, поэтому поля продублированы.
type Payload struct {
	Name  string      `json:"name"`
	Event string      `json:"event"`
	Type  string      `json:"type"`
	ID    json.Number `json:"id"`

	TelegramUserID int64  `json:"telegram_user_id"`
	UserID         int64  `json:"user_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`

	Data PayloadData `json:"payload"`
}

// PayloadData вложенный объект payload события Tribute.
type PayloadData struct {
	TelegramUserID   int64       `json:"telegram_user_id"`
	UserID           int64       `json:"user_id"`
	Amount           int64       `json:"amount"` // в минимальных единицах валюты
	Currency         string      `json:"currency"`
	SubscriptionID   json.Number `json:"subscription_id"`
	OrderID          json.Number `json:"order_id"`
	ProductID        json.Number `json:"product_id"`
	SubscriptionName string      `json:"subscription_name"`
	ProductName      string      `json:"product_name"`
	Name             string      `json:"name"`
	Title            string      `json:"title"`
	ExpiresAt        string      `json:"expires_at"`
}

// EventName возвращает имя события с учетом альтернативных полей.
func (p *Payload) EventName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Event != "" {
		return p.Event
	}
	return p.Type
}

// verifySignature проверяет hex HMAC-SHA256 подпись тела запроса.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.paymentwebhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("trbt-signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		metrics.PaymentsRejected.WithLabelValues("bad-signature").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		metrics.PaymentsRejected.WithLabelValues("bad-json").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessWebhookEvent(r.Context(), &payload); err != nil {
		if errors.Is(err, ErrRejected) {
			// Терминальный отказ: данные события не позволят применить
			// платеж и при повторной доставке. Отвечаем 200, иначе
			// провайдер будет ретраить бесконечно.
			log.Warn("webhook event rejected", sl.Err(err),
				slog.String("event", payload.EventName()))
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed",
		slog.String("event", payload.EventName()))
	w.WriteHeader(http.StatusOK)
}
