package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"roomframe/internal/services"
)

func newWebhookApp(secret string) *fiber.App {
	// An inactive dispatcher drops everything, which is all these tests need
	dispatcher := services.NewDispatcher(nil, nil, nil, nil, nil, nil, nil, 0)
	handler := NewNotificationWebhookHandler(dispatcher, secret)

	app := fiber.New()
	app.Post("/api/webhooks/platform", handler.HandleNotification)
	return app
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_AcceptsSignedNotification(t *testing.T) {
	app := newWebhookApp("topsecret")
	body := `{"id":"n1","resource":"messages","event":"created","data":{"id":"m1"}}`

	req := httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sign("topsecret", body))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	app := newWebhookApp("topsecret")
	body := `{"id":"n1","resource":"messages","event":"created"}`

	req := httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sign("wrongsecret", body))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	app := newWebhookApp("topsecret")

	req := httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader(`{"id":"n1"}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhook_SkipsVerificationWithoutSecret(t *testing.T) {
	app := newWebhookApp("")

	req := httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader(`{"id":"n1"}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected 200 without a configured secret, got %d", resp.StatusCode)
	}
}

func TestWebhook_RejectsEmptyAndMalformedBodies(t *testing.T) {
	app := newWebhookApp("")

	req := httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader(""))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Empty body: expected 400, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("POST", "/api/webhooks/platform", strings.NewReader("{not json"))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Malformed body: expected 400, got %d", resp.StatusCode)
	}
}
