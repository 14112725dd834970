package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fiberDoer routes requests into an in-process fiber app.
type fiberDoer struct {
	app *fiber.App
}

func (d fiberDoer) Do(req *http.Request) (*http.Response, error) {
	return d.app.Test(req, -1)
}

func newTestTransport(t *testing.T, app *fiber.App, bus *events.TypedEventBus[RequestEvent]) *HTTPTransport {
	tr, err := NewHTTPTransport(Options{
		BaseURL:    "http://backend.test/",
		APIKey:     "key-123",
		TenantID:   "tenant-a",
		HTTPClient: fiberDoer{app: app},
		Bus:        bus,
	})
	require.NoError(t, err)
	return tr
}

func TestNewHTTPTransport(t *testing.T) {
	_, err := NewHTTPTransport(Options{})
	assert.Error(t, err)

	tr, err := NewHTTPTransport(Options{BaseURL: "http://backend.test/", BasePath: "v2/"})
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test/v2/data/users", tr.URL("/data/users", nil))
	assert.Equal(t, "http://backend.test/v2/data/users?limit=0", tr.URL("data/users", Params{"limit": 0}))
}

func TestHTTPTransport_Get(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/data/orders", func(c *fiber.Ctx) error {
		assert.Equal(t, "key-123", c.Get(HeaderAPIKey))
		assert.Equal(t, "tenant-a", c.Get(HeaderTenantID))
		assert.NotEmpty(t, c.Get(HeaderRequestID))
		assert.Equal(t, "status", c.Query("where[0][field]"))
		assert.Equal(t, "paid", c.Query("where[0][value]"))
		assert.Equal(t, "5", c.Query("limit"))
		return c.JSON(fiber.Map{
			"data": []fiber.Map{{"id": "o1"}},
			"meta": fiber.Map{"total": 12},
		})
	})

	tr := newTestTransport(t, app, nil)
	resp, err := tr.Get(context.Background(), "/data/orders", Params{
		"where[0][field]":    "status",
		"where[0][operator]": "eq",
		"where[0][value]":    "paid",
		"limit":              5,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"o1"}]`, string(resp.Data))
	assert.Equal(t, float64(12), resp.Meta["total"])
}

func TestHTTPTransport_PostAndPatch(t *testing.T) {
	app := fiber.New()
	app.Post("/api/v1/data/users", func(c *fiber.Ctx) error {
		assert.Equal(t, "application/json", c.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.Unmarshal(c.Body(), &body))
		body["id"] = "u1"
		return c.Status(http.StatusCreated).JSON(fiber.Map{"data": body})
	})
	app.Patch("/api/v1/data/users/u1", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": fiber.Map{"id": "u1", "name": "Bea"}})
	})

	tr := newTestTransport(t, app, nil)

	resp, err := tr.Post(context.Background(), "/data/users", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Ada"}`, string(resp.Data))

	resp, err = tr.Patch(context.Background(), "/data/users/u1", map[string]any{"name": "Bea"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Bea"}`, string(resp.Data))
}

func TestHTTPTransport_DeleteSendsParams(t *testing.T) {
	app := fiber.New()
	app.Delete("/api/v1/data/sessions", func(c *fiber.Ctx) error {
		assert.Equal(t, "expired", c.Query("where[0][field]"))
		assert.Empty(t, c.Body())
		return c.JSON(fiber.Map{"count": 3})
	})

	tr := newTestTransport(t, app, nil)
	resp, err := tr.Delete(context.Background(), "/data/sessions", Params{"where[0][field]": "expired"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, string(resp.Data))
}

func TestHTTPTransport_Errors(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/data/users/missing", func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "record not found"}})
	})
	app.Get("/api/v1/data/users/boom", func(c *fiber.Ctx) error {
		return c.Status(http.StatusInternalServerError).SendString("boom")
	})

	tr := newTestTransport(t, app, nil)

	_, err := tr.Get(context.Background(), "/data/users/missing", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "NOT_FOUND", te.Code)
	assert.Equal(t, "record not found", te.Message)
	assert.NotEmpty(t, te.RequestID)

	_, err = tr.Get(context.Background(), "/data/users/boom", nil)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestHTTPTransport_NetworkFailure(t *testing.T) {
	tr, err := NewHTTPTransport(Options{BaseURL: "http://backend.test", HTTPClient: failingDoer{}})
	require.NoError(t, err)

	_, err = tr.Get(context.Background(), "/data/users", nil)
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPTransport_EmitsEvents(t *testing.T) {
	bus, err := events.NewTypedEventBus[RequestEvent](events.DefaultConfig())
	require.NoError(t, err)

	var mu sync.Mutex
	var received []RequestEvent
	record := func(ctx context.Context, event RequestEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	}
	bus.Subscribe(string(RequestStart), record)
	bus.Subscribe(string(RequestSuccess), record)

	app := fiber.New()
	app.Get("/api/v1/data/users", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": []fiber.Map{}})
	})

	tr := newTestTransport(t, app, bus)
	_, err = tr.Get(context.Background(), "/data/users", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, event := range received {
		assert.Equal(t, http.MethodGet, event.Method)
		assert.Equal(t, "/data/users", event.Path)
		assert.NotEmpty(t, event.RequestID)
		if event.Type == RequestSuccess {
			assert.NotNil(t, event.Duration)
		}
	}
}
