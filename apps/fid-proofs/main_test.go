package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return LoadConfig(fs)
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := loadWithArgs(t)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "https://nemes.farcaster.xyz:2281", cfg.HubURL())
	assert.Equal(t, uint64(906000), cfg.Range.End)
	assert.Equal(t, 2*time.Second, cfg.Request.Timeout)
}

func TestConfigFromFlags(t *testing.T) {
	cfg, err := loadWithArgs(t,
		"--workers=5", "--pool-size=1", "--start-fid=10", "--end-fid=20",
		"--request-timeout=750ms", "--max-retries=5", "--retry-backoff=100ms",
		"--storage-driver=bolt", "--storage-uri=/tmp/p.db", "--hub-scheme=http", "--hub-port=8080",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 1, cfg.Transport.PoolSize)
	assert.Equal(t, RangeConfig{Start: 10, End: 20}, cfg.Range)
	assert.Equal(t, 750*time.Millisecond, cfg.Request.Timeout)
	assert.Equal(t, RetryConfig{MaxAttempts: 5, Backoff: 100 * time.Millisecond}, cfg.Retry)
	assert.Equal(t, StorageConfig{Driver: "bolt", URI: "/tmp/p.db"}, cfg.Storage)
	assert.Equal(t, "http://nemes.farcaster.xyz:8080", cfg.HubURL())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FIDPROOFS_TRANSPORT_POOL_SIZE", "3")
	t.Setenv("FIDPROOFS_REQUEST_TIMEOUT", "5s")
	t.Setenv("FIDPROOFS_HUB_HOST", "hub.internal")
	t.Setenv("FIDPROOFS_WORKERS", "7")

	cfg, err := loadWithArgs(t, "--workers=9")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Transport.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Request.Timeout)
	assert.Equal(t, "hub.internal", cfg.Hub.Host)
	assert.Equal(t, 9, cfg.Workers, "flag beats env")
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fid-proofs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: postgres
  uri: postgres://u:p@db/proofs
range:
  start: 100
  end: 200
progress:
  interval: 25
`), 0600))

	cfg, err := loadWithArgs(t, "--config="+path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db/proofs", cfg.Storage.URI)
	assert.Equal(t, RangeConfig{Start: 100, End: 200}, cfg.Range)
	assert.Equal(t, 25, cfg.Progress.Interval)
	assert.Equal(t, 20, cfg.Workers)
}

func TestConfigMissingFile(t *testing.T) {
	_, err := loadWithArgs(t, "--config="+filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"inverted range", []string{"--start-fid=10", "--end-fid=9"}, "Range.End"},
		{"zero workers", []string{"--workers=0"}, "Workers"},
		{"zero pool", []string{"--pool-size=0"}, "PoolSize"},
		{"zero attempts", []string{"--max-retries=0"}, "MaxAttempts"},
		{"zero timeout", []string{"--request-timeout=0s"}, "Timeout"},
		{"bad driver", []string{"--storage-driver=mongo"}, "Driver"},
		{"missing uri", []string{"--storage-uri="}, "URI"},
		{"bad port", []string{"--hub-port=70000"}, "Port"},
		{"bad format", []string{"--log-format=xml"}, "Format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWithArgs(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg, err := loadWithArgs(t, "--storage-driver=memory", "--storage-uri=")
	require.NoError(t, err, "memory needs no uri")
	assert.Empty(t, cfg.Storage.URI)
}

func TestIdleConnsPerHandle(t *testing.T) {
	assert.Equal(t, 2, idleConnsPerHandle(20, 10))
	assert.Equal(t, 3, idleConnsPerHandle(21, 10))
	assert.Equal(t, 1, idleConnsPerHandle(5, 10))
	assert.Equal(t, 7, idleConnsPerHandle(7, 1))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}

func TestHandleHealthz(t *testing.T) {
	tests := []struct {
		method string
		code   int
		body   string
	}{
		{http.MethodGet, http.StatusOK, "ok\n"},
		{http.MethodHead, http.StatusOK, ""},
		{http.MethodPost, http.StatusMethodNotAllowed, "method not allowed\n"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/healthz", nil)
		rec := httptest.NewRecorder()
		handleHealthz(rec, req)
		if rec.Code != tt.code {
			t.Errorf("%s /healthz = %d, want %d", tt.method, rec.Code, tt.code)
		}
		assert.Equal(t, tt.body, rec.Body.String(), tt.method)
	}
}

func TestInstrumentLabels(t *testing.T) {
	assert.Equal(t, "/healthz", routeLabel("/healthz"))
	assert.Equal(t, "other", routeLabel("/wp-admin/setup.php"))

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.Status(), "nothing written")
	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusTeapot, rec.Status(), "first status wins")
}

func TestMetricsServer(t *testing.T) {
	ms, err := startMetricsServer("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer ms.Shutdown()

	resp, err := http.Get("http://" + ms.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + ms.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "fid_proofs_persisted_total")
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/healthz",status="2xx"}`)

	resp, err = http.Get("http://" + ms.Addr() + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, err = http.Get("http://" + ms.Addr() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="other",status="4xx"}`)
}

// hubFlags points the CLI at srv.
func hubFlags(t *testing.T, srv *httptest.Server) []string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	_, err = strconv.Atoi(port)
	require.NoError(t, err)
	return []string{"--hub-scheme=http", "--hub-host=" + host, "--hub-port=" + port}
}

func newFakeHub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("fid") {
		case "1":
			w.Write([]byte(`{"proofs":[{"fid":1,"name":"a","owner":"0x1"}]}`))
		case "2":
			w.Write([]byte(`{"proofs":[]}`))
		default:
			http.Error(w, "down", http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootCommandRunsRange(t *testing.T) {
	srv := newFakeHub(t)
	dbPath := filepath.Join(t.TempDir(), "proofs.sqlite")

	var logs bytes.Buffer
	root := newRootCommand(&logs)
	root.SetArgs(append(hubFlags(t, srv),
		"--storage-uri="+dbPath, "--start-fid=1", "--end-fid=3",
		"--workers=2", "--pool-size=1", "--max-retries=2", "--progress-interval=1",
	))
	require.NoError(t, root.ExecuteContext(context.Background()))

	out := logs.String()
	assert.Contains(t, out, `"msg":"run started"`)
	assert.Contains(t, out, `"msg":"fetch exhausted"`)
	assert.Contains(t, out, `"fid":3,"attempts":2`)
	assert.Contains(t, out, `"msg":"progress"`)
	assert.Contains(t, out, `"persisted":1`)
	assert.Contains(t, out, `"run_id":`)
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestRunStartupFailure(t *testing.T) {
	cfg := DefaultConfig()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	cfg.Storage = StorageConfig{Driver: "bolt", URI: filepath.Join(blocker, "p.db")}

	_, err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestRunWithMemoryStore(t *testing.T) {
	srv := newFakeHub(t)
	cfg, err := loadWithArgs(t, append(hubFlags(t, srv),
		"--storage-driver=memory", "--start-fid=1", "--end-fid=5", "--max-retries=1",
		"--metrics-addr=127.0.0.1:0",
	)...)
	require.NoError(t, err)

	sum, err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum.Dispatched)
	assert.Equal(t, uint64(1), sum.Persisted)
	assert.Zero(t, sum.TaskErrors)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "proofs.sqlite")
	var logs bytes.Buffer
	root := newRootCommand(&logs)
	root.SetArgs([]string{"migrate", "--storage-uri=" + dbPath})
	require.NoError(t, root.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Contains(t, logs.String(), `"msg":"store ready"`)
}
