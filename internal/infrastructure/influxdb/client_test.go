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

	"github.com/nerrad567/plc-core/internal/dimmer"
	"github.com/nerrad567/plc-core/internal/infrastructure/config"
	"github.com/nerrad567/plc-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records the line protocol posted to
// /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func connectFake(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "plc",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 60,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, fake
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: url, Token: "t"})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{})
	defer srv.Close()

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled: true, URL: srv.URL, Token: "t", Org: "o", Bucket: "b",
		BatchSize: -1, FlushInterval: 0,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestHealthCheck(t *testing.T) {
	client, _ := connectFake(t)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
}

func TestWriteUniverse(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteUniverse("full", dimmer.Levels{1: 128, 12: 255}, time.Unix(1700000000, 0))
	client.WriteUniverse("input", nil, time.Now())
	client.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want one point", lines)
	}
	line := lines[0]
	for _, want := range []string{"universe,origin=full ", "ch1=128i", "ch12=255i", " 1700000000000000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteUpdateAndClients(t *testing.T) {
	client, fake := connectFake(t)

	client.WriteUpdate("group", "g1", 0.5, 3)
	client.WriteUpdate("dimmers", "", 1, 2)
	client.WriteClients(4)
	client.Flush()

	lines := fake.written()
	if len(lines) != 3 {
		t.Fatalf("written lines = %v, want 3", lines)
	}
	checks := []struct {
		line int
		want []string
	}{
		{0, []string{"updates,id=g1,kind=group ", "channels=3i", "level=0.5"}},
		{1, []string{"updates,kind=dimmers ", "channels=2i"}},
		{2, []string{"clients ", "registered=4i"}},
	}
	for _, c := range checks {
		for _, want := range c.want {
			if !strings.Contains(lines[c.line], want) {
				t.Errorf("line %q missing %q", lines[c.line], want)
			}
		}
	}
}

func TestNilClientDropsWrites(t *testing.T) {
	var client *influxdb.Client

	client.WriteUniverse("full", dimmer.Levels{1: 1}, time.Now())
	client.WriteUpdate("cue", "c1", 1, 1)
	client.WriteClients(1)
	client.Flush()

	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	client, fake := connectFake(t)
	client.Close()

	client.WriteClients(2)
	client.Flush()

	if lines := fake.written(); len(lines) != 0 {
		t.Errorf("written after Close: %v", lines)
	}
}
