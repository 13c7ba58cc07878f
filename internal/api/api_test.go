package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailblocks/internal/api"
	"github.com/dmitrymomot/mailblocks/internal/delivery"
	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/service"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
)

type stubSender struct{}

func (stubSender) Send(context.Context, *mailer.Email) (string, error) {
	return "msg-123", nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "schedules.json"), nil)
	require.NoError(t, err)

	comp := compiler.New(nil)
	sender := stubSender{}
	activity := delivery.New(comp, sender, st, nil)
	memory := scheduler.NewMemory(activity, nil)
	svc := service.New(st, memory, comp, sender, nil)

	srv := httptest.NewServer(api.NewHandler(svc, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp, payload
}

func scheduleBody(target time.Time) string {
	return fmt.Sprintf(`{
		"recipient": "user@example.com",
		"subject": "Hi",
		"targetTime": %q,
		"data": {"content": [{"type": "Text", "props": {"content": "body"}}]}
	}`, target.Format(time.RFC3339))
}

func TestAPI_Schedule(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		resp, payload := postJSON(t, srv, "/api/schedule", scheduleBody(time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, true, payload["success"])
		require.NotEmpty(t, payload["scheduleId"])
		require.NotEmpty(t, payload["orchestratorHandle"])
	})

	t.Run("invalid recipient", func(t *testing.T) {
		t.Parallel()
		resp, payload := postJSON(t, srv, "/api/schedule", `{
			"recipient": "nope", "subject": "Hi", "targetTime": "2999-01-01T00:00:00Z",
			"data": {"content": [{"type": "Text", "props": {"content": "x"}}]}
		}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, false, payload["success"])
	})

	t.Run("past target time", func(t *testing.T) {
		t.Parallel()
		resp, _ := postJSON(t, srv, "/api/schedule", scheduleBody(time.Now().Add(-time.Hour)))
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		resp, _ := postJSON(t, srv, "/api/schedule", `{broken`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Cancel(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, payload := postJSON(t, srv, "/api/schedule", scheduleBody(time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := payload["scheduleId"].(string)

	t.Run("ok", func(t *testing.T) {
		resp, payload := postJSON(t, srv, "/api/cancel", fmt.Sprintf(`{"scheduleId": %q}`, id))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "cancelled", payload["status"])
	})

	t.Run("already cancelled conflicts", func(t *testing.T) {
		resp, _ := postJSON(t, srv, "/api/cancel", fmt.Sprintf(`{"scheduleId": %q}`, id))
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown id", func(t *testing.T) {
		resp, _ := postJSON(t, srv, "/api/cancel", `{"scheduleId": "missing"}`)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPI_List(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	t.Run("empty collection is an empty array", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/schedules")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Success   bool           `json:"success"`
			Schedules []store.Record `json:"schedules"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.NotNil(t, payload.Schedules)
		require.Empty(t, payload.Schedules)
	})

	t.Run("filter by status", func(t *testing.T) {
		resp, _ := postJSON(t, srv, "/api/schedule", scheduleBody(time.Now().Add(time.Hour)))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err := srv.Client().Get(srv.URL + "/api/schedules?status=scheduled")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Schedules []store.Record `json:"schedules"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Len(t, payload.Schedules, 1)
	})

	t.Run("unknown filter rejected", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/schedules?status=queued")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Preview(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/api/preview", "application/json", strings.NewReader(`{
		"subject": "Preview me",
		"data": {"content": [{"type": "Heading", "props": {"content": "Hello"}}]}
	}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Hello")
	require.Contains(t, string(body), "Preview me")
	require.True(t, strings.HasPrefix(string(body), "<!doctype html>"))
}

func TestAPI_Send(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, payload := postJSON(t, srv, "/api/send", `{
		"recipient": "user@example.com",
		"subject": "Hi",
		"data": {"content": [{"type": "Text", "props": {"content": "x"}}]}
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, payload["success"])
	require.Equal(t, "msg-123", payload["id"])
}
