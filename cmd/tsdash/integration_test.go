//go:build integration

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/tsdash/cmd/tsdash/config"
	"github.com/HatiCode/tsdash/cmd/tsdash/metrics"
	"github.com/HatiCode/tsdash/cmd/tsdash/router"
	"github.com/HatiCode/tsdash/cmd/tsdash/store"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return strings.TrimPrefix(endpoint, "redis://")
}

// startInstance serves a full dashboard backed by the Redis at addr.
func startInstance(t *testing.T, addr string) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage = "redis"
	cfg.RedisAddr = addr
	cfg.PlotDir = t.TempDir()
	cfg.ResultsDir = t.TempDir()
	cfg.ImportEnabled = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions, closeStore, err := store.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	reg := prometheus.NewRegistry()
	app, err := NewApp(cfg, sessions, nil, logger, metrics.New(reg))
	require.NoError(t, err)

	srv := httptest.NewServer(router.New(app, router.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		ImportEnabled:  cfg.ImportEnabled,
		Gatherer:       reg,
	}, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestDashboardEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := setupRedis(t)
	first := startInstance(t, addr)
	second := startInstance(t, addr)

	res := postJSON(t, first.URL+"/sample/random", "")
	id, _ := res["session"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "an ARMA(1, 1) sample", res["label"])

	resp, err := http.Get(first.URL + "/results/" + id)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "date,"))

	// sessions live in Redis, so any instance can refit them
	view := postJSON(t, second.URL+"/model", `{"session":"`+id+`","ar_order":2,"diff_order":1,"ma_order":1}`)
	assert.Equal(t, id, view["session"])
	model, _ := view["model"].(map[string]any)
	assert.Equal(t, "(2, 1, 1)", model["order"])

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(second.URL, "http")+"/ws/model", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Minute)))

	for _, order := range []int{1, 2, 3} {
		require.NoError(t, conn.WriteJSON(map[string]any{"session": id, "ar_order": order, "ma_order": 1}))
		var v router.RefitView
		require.NoError(t, conn.ReadJSON(&v))
		assert.Equal(t, id, v.Session)
		require.NotNil(t, v.Forecast)
		assert.NotEmpty(t, v.Forecast.Panels)
	}

	resp, err = http.Get(second.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDashboardImport(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	source := prometheusServer(t, 45)
	srv := startInstance(t, setupRedis(t))

	res := postJSON(t, srv.URL+"/import",
		`{"adapter":"victoriametrics","config":{"url":"`+source.URL+`","query":"sum(orders_total)"},"window":"1080h","step":"24h"}`)
	assert.Equal(t, "victoriametrics: sum(orders_total)", res["label"])

	resp, err := http.Get(srv.URL + "/sessions/" + res["session"].(string))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sess struct {
		Source string `json:"source"`
		Series struct {
			Values []float64 `json:"values"`
		} `json:"series"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, "import", sess.Source)
	assert.Len(t, sess.Series.Values, 45)
}
