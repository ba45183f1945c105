package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func availabilityApp(sa *ServiceAvailability) *fiber.App {
	app := fiber.New()
	app.Use(sa.Middleware())
	app.Post("/api/v1/orders", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestMaintenanceModeShedsTradingRequests(t *testing.T) {
	sa := NewServiceAvailability(0)
	sa.SetMaintenanceMode(true)
	app := availabilityApp(sa)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503 in maintenance mode, got %d", resp.StatusCode)
	}
}

func TestMaintenanceModeKeepsHealthReachable(t *testing.T) {
	sa := NewServiceAvailability(0)
	sa.SetMaintenanceMode(true)
	app := availabilityApp(sa)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected health to bypass maintenance mode, got %d", resp.StatusCode)
	}
}

func TestMaintenanceModeToggle(t *testing.T) {
	sa := NewServiceAvailability(0)
	app := availabilityApp(sa)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected requests through when not in maintenance, got %d", resp.StatusCode)
	}

	sa.SetMaintenanceMode(true)
	if !sa.IsMaintenanceMode() {
		t.Errorf("Expected maintenance mode reported on")
	}
	sa.SetMaintenanceMode(false)
	if sa.IsMaintenanceMode() {
		t.Errorf("Expected maintenance mode reported off")
	}
}
