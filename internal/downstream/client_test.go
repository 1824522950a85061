package downstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerxes-systems/xerxes-bridge/internal/fault"
)

func TestPostTelemetry(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)
	err := c.PostTelemetry(context.Background(), "tok-1", 1700000000000, map[string]float64{"temperature_c": 21.5})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/tok-1/telemetry", gotPath)
	assert.Equal(t, float64(1700000000000), gotBody["ts"])
	values, ok := gotBody["values"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 21.5, values["temperature_c"])
}

func TestDo_ClassifiesServerErrorsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)
	err := c.PostTelemetry(context.Background(), "tok-1", 0, map[string]float64{"temperature_c": 1})
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
}

func TestDo_ClassifiesClientErrorsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)
	err := c.PostTelemetry(context.Background(), "tok-bad", 0, map[string]float64{"temperature_c": 1})
	require.Error(t, err)
	assert.False(t, fault.IsTransient(err))
}

func TestDo_ConnectionFailureIsTransient(t *testing.T) {
	c := New("http://127.0.0.1:1", "jwt", 200*time.Millisecond)
	err := c.PostTelemetry(context.Background(), "tok-1", 0, map[string]float64{"temperature_c": 1})
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
}

func TestLookupDeviceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt", r.Header.Get("X-Authorization"))
		switch r.URL.Query().Get("deviceName") {
		case "42":
			json.NewEncoder(w).Encode(map[string]any{
				"id": map[string]any{"id": "dev-uuid-1", "entityType": "DEVICE"},
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)

	id, err := c.LookupDeviceID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "dev-uuid-1", id)

	id, err = c.LookupDeviceID(context.Background(), "unknown")
	require.NoError(t, err, "absent devices are not an error")
	assert.Empty(t, id)
}

func TestLastTelemetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"temperature_c": []map[string]any{{"ts": 1700000060000, "value": "21.5"}},
			"humidity_pct":  []map[string]any{{"ts": 1700000000000, "value": "48"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)
	last, err := c.LastTelemetry(context.Background(), "dev-uuid-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(1700000060000), last.UnixMilli(), "newest series timestamp wins")
}

func TestLastTelemetry_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)
	last, err := c.LastTelemetry(context.Background(), "dev-uuid-1")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/tok-good/attributes" {
			json.NewEncoder(w).Encode(map[string]any{"client": map[string]any{}})
			return
		}
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt", time.Second)

	ok, err := c.ValidateToken(context.Background(), "tok-good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateToken(context.Background(), "tok-bad")
	require.NoError(t, err)
	assert.False(t, ok)
}
