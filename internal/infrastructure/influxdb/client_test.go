package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
	"github.com/nerrad567/jsonwp-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	query  string
	status int
	*httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			f.query = r.URL.RawQuery
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			status := f.status
			f.mu.Unlock()
			w.WriteHeader(status)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "jsonwp",
		Bucket:        "commands",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	url := f.URL
	f.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -1
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteCommand(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteCommand(influxdb.CommandPoint{
		Command:        "setUrl",
		Method:         "POST",
		HTTPStatus:     200,
		ProtocolStatus: 0,
		Duration:       2500 * time.Microsecond,
		Time:           time.Unix(1700000000, 0),
	})
	client.Flush()

	lines := f.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{
		"jsonwp_commands,",
		"command=setUrl",
		"http_status=200",
		"method=POST",
		"proxied=false",
		"duration_ms=2.5",
		"protocol_status=0i",
		"service=jsonwp-gateway",
		" 1700000000000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.Contains(f.query, "bucket=commands") || !strings.Contains(f.query, "org=jsonwp") || !strings.Contains(f.query, "precision=us") {
		t.Errorf("write query = %q", f.query)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	f.mu.Lock()
	f.status = http.StatusBadRequest
	f.mu.Unlock()

	got := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	client.WriteCommand(influxdb.CommandPoint{Command: "click", Method: "POST", HTTPStatus: 500})
	client.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback received nil error")
		}
		if n := client.WriteErrors(); n == 0 {
			t.Error("WriteErrors() = 0 after a failed write")
		}
	case <-time.After(5 * time.Second):
		t.Error("write error was not delivered")
	}
}

// =============================================================================
// Closed Client Tests
// =============================================================================

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// No-ops after Close.
	client.WriteCommand(influxdb.CommandPoint{Command: "x"})
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
