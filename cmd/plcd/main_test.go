package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

func TestRun_Version(t *testing.T) {
	if err := run(context.Background(), []string{"--version"}); err != nil {
		t.Errorf("run(--version) error = %v", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--no-such-flag"}); err == nil {
		t.Error("run() should fail on an unknown flag")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("PLC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, nil); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidUniverse(t *testing.T) {
	path := writeTestConfig(t, freePort(t), "universe:\n  channels: 0\n")
	if err := run(context.Background(), []string{"--config", path}); err == nil {
		t.Fatal("run() should fail validation for zero channels")
	}
}

func TestRun_InputUnavailable(t *testing.T) {
	// Occupy the OSC port so the input source cannot bind.
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_, port, _ := net.SplitHostPort(conn.LocalAddr().String())

	extra := fmt.Sprintf("universe:\n  input: osc\nosc:\n  listen_address: 127.0.0.1\n  listen_port: %s\n", port)
	path := writeTestConfig(t, freePort(t), extra)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = run(ctx, []string{"-c", path})
	if err == nil || !strings.Contains(err.Error(), "universe input") {
		t.Fatalf("run() error = %v, want universe input failure", err)
	}
}

func TestRun_PersistsAcrossRestart(t *testing.T) {
	port := freePort(t)
	path := writeTestConfig(t, port, "")
	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1", port)

	// First run: create a group and apply it.
	stop := startRun(t, path, base)
	mustStatus(t, http.MethodPost, base+"/registries/groups/entities/g1", http.StatusCreated)
	mustStatus(t, http.MethodPost, base+"/apply", http.StatusNotFound, `{"kind":"group","id":"missing"}`)
	stop()

	// Second run: the group comes back from the snapshot store.
	stop = startRun(t, path, base)
	defer stop()

	resp, err := http.Get(base + "/registries/groups")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	reg := dimmer.NewGroupRegistry(nil)
	if err := reg.ImportFull(data); err != nil {
		t.Fatalf("ImportFull() error = %v", err)
	}
	if _, ok := reg.Get("g1"); !ok {
		t.Error("group g1 not restored after restart")
	}
}

// startRun runs the server in the background until the returned func is
// called. It waits for the health endpoint before returning.
func startRun(t *testing.T, path, base string) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, []string{"--config", path}) }()

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case runErr := <-errCh:
			cancel()
			t.Fatalf("run() exited early: %v", runErr)
		default:
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server did not become healthy")
		}
		time.Sleep(20 * time.Millisecond)
	}

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("run() error = %v", err)
			}
		case <-time.After(15 * time.Second):
			t.Fatal("run() did not return after cancel")
		}
	}
}

func mustStatus(t *testing.T, method, url string, want int, body ...string) {
	t.Helper()
	var r io.Reader
	if len(body) > 0 {
		r = strings.NewReader(body[0])
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", method, url, resp.StatusCode, want)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeTestConfig(t *testing.T, port int, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
server:
  address: "127.0.0.1"
  port: %d
saving:
  autosave: true
  database:
    path: %q
logging:
  level: error
  format: text
  output: stderr
`, port, filepath.Join(dir, "plc.db"))
	content += extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}
