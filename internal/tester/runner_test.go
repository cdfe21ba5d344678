package tester

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"find-me-internet/internal/model"
	"find-me-internet/internal/parser"
	"find-me-internet/internal/portalloc"
)

// TestHelperProcess stands in for the sing-box binary. It is only active
// when re-executed through the wrapper script from fakeEngine.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("FAKE_ENGINE") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	args = args[1:]

	switch args[0] {
	case "version":
		fmt.Println("sing-box version fake")
		os.Exit(0)
	case "run":
		if os.Getenv("FAKE_ENGINE_MODE") == "silent" {
			time.Sleep(time.Minute)
			os.Exit(0)
		}
		if err := runFakeEngine(args[2]); err != nil {
			os.Exit(3)
		}
		os.Exit(0)
	}
	os.Exit(2)
}

func runFakeEngine(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var cfg SingBoxConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Inbounds[0].ListenPort)))
	if err != nil {
		return err
	}
	for {
		c, err := l.Accept()
		if err != nil {
			return err
		}
		go relaySOCKS(c)
	}
}

// relaySOCKS is a bare no-auth SOCKS5 CONNECT relay.
func relaySOCKS(c net.Conn) {
	defer c.Close()
	buf := make([]byte, 256)

	if _, err := io.ReadFull(c, buf[:2]); err != nil {
		return
	}
	if _, err := io.ReadFull(c, buf[:int(buf[1])]); err != nil {
		return
	}
	c.Write([]byte{5, 0})

	if _, err := io.ReadFull(c, buf[:4]); err != nil {
		return
	}
	var host string
	switch buf[3] {
	case 1:
		if _, err := io.ReadFull(c, buf[:4]); err != nil {
			return
		}
		host = net.IP(buf[:4]).String()
	case 3:
		if _, err := io.ReadFull(c, buf[:1]); err != nil {
			return
		}
		n := int(buf[0])
		if _, err := io.ReadFull(c, buf[:n]); err != nil {
			return
		}
		host = string(buf[:n])
	case 4:
		if _, err := io.ReadFull(c, buf[:16]); err != nil {
			return
		}
		host = net.IP(buf[:16]).String()
	default:
		return
	}
	if _, err := io.ReadFull(c, buf[:2]); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(buf[:2])

	up, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		c.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer up.Close()
	c.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0})

	go io.Copy(up, c)
	io.Copy(c, up)
}

// fakeEngine writes a script that re-executes this test binary as the engine.
func fakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine needs a POSIX shell")
	}
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "sing-box")
	script := fmt.Sprintf("#!/bin/sh\nFAKE_ENGINE=1 exec %q -test.run='^TestHelperProcess$' -- \"$@\"\n", self)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
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

func testEndpoint(t *testing.T) model.Endpoint {
	t.Helper()
	ep, err := parser.ParseLink("ss://YWVzLTI1Ni1nY206cGFzc3dvcmQ=@1.2.3.4:8388#MyNode")
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestVerifyThroughEngine(t *testing.T) {
	bin := fakeEngine(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server-Timing", "total;dur=5")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	port := freePort(t)
	r := NewRunner(bin, srv.URL+"/generate_204", 5*time.Second, portalloc.NewCounter(port, port+1))
	r.SettleDelay = 5 * time.Second

	v := r.Verify(context.Background(), testEndpoint(t))
	if !v.Usable || v.Reason != model.ReasonOK {
		t.Fatalf("verification = %+v", v)
	}
	if v.HTTPStatus == nil || *v.HTTPStatus != http.StatusNoContent {
		t.Errorf("http status = %v", v.HTTPStatus)
	}
	if v.ServerTime == nil || *v.ServerTime != 5*time.Millisecond {
		t.Errorf("server time = %v", v.ServerTime)
	}
	if v.Elapsed == nil {
		t.Error("elapsed not recorded")
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestVerifyEngineNeverListens(t *testing.T) {
	bin := fakeEngine(t)
	t.Setenv("FAKE_ENGINE_MODE", "silent")

	port := freePort(t)
	r := NewRunner(bin, "http://127.0.0.1:1/", 2*time.Second, portalloc.NewCounter(port, port+1))
	r.SettleDelay = 300 * time.Millisecond
	r.StopTimeout = time.Second

	start := time.Now()
	v := r.Verify(context.Background(), testEndpoint(t))
	if v.Usable {
		t.Fatalf("verification = %+v, want unusable", v)
	}
	if v.Reason != model.ReasonRefused {
		t.Errorf("reason = %s, want %s", v.Reason, model.ReasonRefused)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("engine was not stopped promptly: %s", elapsed)
	}
}

func TestVerifyWithoutEngine(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "missing"), "http://127.0.0.1/", time.Second, portalloc.NewCounter(20000, 20010))

	if err := r.Ensure(); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("Ensure() = %v, want ErrEngineUnavailable", err)
	}
	v := r.Verify(context.Background(), testEndpoint(t))
	if v.Usable || v.Reason != model.ReasonNoEngine {
		t.Errorf("verification = %+v", v)
	}
}

func TestVerifySpawnFailure(t *testing.T) {
	bin := fakeEngine(t)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	port := freePort(t)
	r := NewRunner(bin, "http://127.0.0.1:1/", time.Second, portalloc.NewCounter(port, port+1))
	if err := r.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	// Availability is cached, so the binary can vanish before run.
	if err := os.Remove(bin); err != nil {
		t.Fatal(err)
	}

	v := r.Verify(context.Background(), testEndpoint(t))
	if v.Usable || v.Reason != model.ReasonEngine {
		t.Errorf("verification = %+v, want %s", v, model.ReasonEngine)
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestVerifyConcurrentPortCollision(t *testing.T) {
	bin := fakeEngine(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	// A one-port hash range sends every endpoint to the same port.
	port := freePort(t)
	r := NewRunner(bin, srv.URL, 3*time.Second, &portalloc.Hash{Min: port, Max: port + 1})
	r.SettleDelay = 3 * time.Second
	r.StopTimeout = time.Second

	links := []string{
		"ss://YWVzLTI1Ni1nY206cGFzc3dvcmQ=@1.2.3.4:8388#a",
		"trojan://secret@t.example.org:443#b",
	}
	results := make([]model.Verification, len(links))
	var wg sync.WaitGroup
	for i, link := range links {
		ep, err := parser.ParseLink(link)
		if err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Verify(context.Background(), ep)
		}()
	}
	wg.Wait()

	known := map[string]bool{
		model.ReasonOK: true, model.ReasonRefused: true, model.ReasonRetries: true,
		model.ReasonTimeout: true, model.ReasonFailed: true,
	}
	usable := 0
	for i, v := range results {
		if !known[v.Reason] {
			t.Errorf("result %d has reason %q", i, v.Reason)
		}
		if v.Usable {
			usable++
		}
	}
	// Whichever engine holds the port stays up for its own request.
	if usable == 0 {
		t.Errorf("no verification succeeded: %+v", results)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}
