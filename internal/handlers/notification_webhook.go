package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"roomframe/internal/models"
	"roomframe/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "Webhook-Signature"

// NotificationWebhookHandler receives platform notifications over HTTP
type NotificationWebhookHandler struct {
	dispatcher *services.Dispatcher
	secret     string
	limiter    *rate.Limiter
}

// NewNotificationWebhookHandler creates the webhook ingress. An empty secret
// disables signature verification (local development only).
func NewNotificationWebhookHandler(dispatcher *services.Dispatcher, secret string) *NotificationWebhookHandler {
	return &NotificationWebhookHandler{
		dispatcher: dispatcher,
		secret:     secret,
		limiter:    rate.NewLimiter(rate.Limit(100), 200),
	}
}

// HandleNotification handles POST /api/webhooks/platform
func (h *NotificationWebhookHandler) HandleNotification(c *fiber.Ctx) error {
	if !h.limiter.Allow() {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Rate limit exceeded",
		})
	}

	payload := c.Body()
	if len(payload) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing payload",
		})
	}

	if h.secret != "" {
		signature := c.Get(SignatureHeader)
		if !verifySignature(h.secret, payload, signature) {
			log.Printf("[WEBHOOK] Signature verification failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
	}

	var notification models.Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload format: " + err.Error(),
		})
	}

	// Ack immediately; dispatch runs on its own goroutine so slow platform
	// calls never make the sender retry. The request context is not reused
	// because fiber recycles it once the handler returns.
	go h.dispatcher.ProcessNotification(context.Background(), notification)

	return c.JSON(fiber.Map{"status": "accepted"})
}

func verifySignature(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
