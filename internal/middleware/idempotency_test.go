package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int64, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))

	var hits atomic.Int64
	handler := func(c *fiber.Ctx) error {
		hits.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "path": c.Path()})
	}
	app.Post("/fund", handler)
	app.Post("/trade", handler)

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &hits, cleanup
}

type testResponse struct {
	Code int
	Body string
}

func postJSON(t *testing.T, app *fiber.App, path, key string) testResponse {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s: %v", path, err)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return testResponse{Code: resp.StatusCode, Body: string(payload)}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	rec := postJSON(t, app, "/fund", "")
	if rec.Code != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, rec.Code)
	}
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	app, hits, cleanup := setupTestApp(t)
	defer cleanup()

	first := postJSON(t, app, "/fund", "abc123")
	if first.Code != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, first.Code)
	}

	second := postJSON(t, app, "/fund", "abc123")
	if second.Code != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, second.Code)
	}
	if second.Body != first.Body {
		t.Fatalf("expected cached payload %s got %s", first.Body, second.Body)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(second.Body), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyScopesKeysByPath(t *testing.T) {
	app, hits, cleanup := setupTestApp(t)
	defer cleanup()

	fund := postJSON(t, app, "/fund", "shared-key")
	trade := postJSON(t, app, "/trade", "shared-key")

	if fund.Code != fiber.StatusCreated || trade.Code != fiber.StatusCreated {
		t.Fatalf("expected both requests to succeed, got %d and %d", fund.Code, trade.Code)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected two distinct executions, got %d", got)
	}
	if fund.Body == trade.Body {
		t.Fatalf("expected distinct responses per path, both were %s", fund.Body)
	}
}
