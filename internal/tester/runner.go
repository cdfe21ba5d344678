package tester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"find-me-internet/internal/model"
	"find-me-internet/internal/portalloc"

	"golang.org/x/net/proxy"
)

var ErrEngineUnavailable = errors.New("proxy engine unavailable")

const (
	DefaultSettleDelay = 800 * time.Millisecond
	DefaultStopTimeout = 2 * time.Second
	versionTimeout     = 3 * time.Second
)

// Runner verifies endpoints by running one sing-box instance per call
// and fetching TestURL through it. Safe for concurrent use as long as
// Ports hands out distinct ports.
type Runner struct {
	BinPath     string
	TestURL     string
	Timeout     time.Duration // HTTP probe
	SettleDelay time.Duration
	StopTimeout time.Duration
	Ports       portalloc.Allocator

	availOnce sync.Once
	available bool
}

func NewRunner(binPath, testURL string, timeout time.Duration, ports portalloc.Allocator) *Runner {
	return &Runner{
		BinPath:     binPath,
		TestURL:     testURL,
		Timeout:     timeout,
		SettleDelay: DefaultSettleDelay,
		StopTimeout: DefaultStopTimeout,
		Ports:       ports,
	}
}

// Available reports whether `<bin> version` exits zero. The answer is
// cached for the lifetime of the Runner.
func (r *Runner) Available() bool {
	r.availOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
		defer cancel()
		r.available = exec.CommandContext(ctx, r.BinPath, "version").Run() == nil
	})
	return r.available
}

// Ensure returns ErrEngineUnavailable when the binary cannot be run.
func (r *Runner) Ensure() error {
	if !r.Available() {
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, r.BinPath)
	}
	return nil
}

// Verify never fails: every problem is folded into the returned reason.
func (r *Runner) Verify(ctx context.Context, ep model.Endpoint) model.Verification {
	log := slog.With("target", ep.Host, "port", ep.Port, "scheme", ep.Scheme)

	if !r.Available() {
		return model.Verification{Reason: model.ReasonNoEngine}
	}

	// 1. Port Allocation
	port := r.Ports.Allocate(ep.Raw)

	// 2. Config Generation
	configData, err := GenerateConfig(ep, port)
	if err != nil {
		log.Debug("config_generation_failed", "error", err)
		return model.Verification{Reason: model.ReasonEngine}
	}

	dir, err := os.MkdirTemp("", "scan_")
	if err != nil {
		log.Error("temp_dir_failed", "error", err)
		return model.Verification{Reason: model.ReasonEngine}
	}
	defer os.RemoveAll(dir)

	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, configData, 0600); err != nil {
		log.Error("config_write_failed", "error", err)
		return model.Verification{Reason: model.ReasonEngine}
	}

	// 3. Process Execution
	stop, err := r.start(ctx, configPath)
	if err != nil {
		log.Debug("singbox_process_start_failed", "error", err)
		return model.Verification{Reason: model.ReasonEngine}
	}
	defer stop()

	// 4. Wait for Binding
	if !waitForPort(ctx, port, r.SettleDelay) {
		log.Debug("singbox_bind_timeout", "local_port", port)
	}

	// 5. HTTP Probe
	res, err := r.probe(ctx, port)
	if err != nil {
		reason := classify(err)
		log.Debug("http_probe_failed", "local_port", port, "reason", reason, "error", err)
		return model.Verification{Reason: reason}
	}
	return res
}

// start spawns the engine with its output discarded. The returned stop
// terminates it, waiting at most StopTimeout before killing.
func (r *Runner) start(ctx context.Context, configPath string) (func(), error) {
	procCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(procCtx, r.BinPath, "run", "-c", configPath)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.StopTimeout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	return func() {
		cancel()
		_ = cmd.Wait()
	}, nil
}

func (r *Runner) probe(ctx context.Context, port int) (model.Verification, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	dialer, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: r.Timeout})
	if err != nil {
		return model.Verification{}, err
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return model.Verification{}, fmt.Errorf("socks5 dialer lacks DialContext")
	}

	// Hostnames are handed to the proxy unresolved, so DNS goes through it too.
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:       cd.DialContext,
			DisableKeepAlives: true,
		},
		Timeout: r.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.TestURL, nil)
	if err != nil {
		return model.Verification{}, err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return model.Verification{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	elapsed := time.Since(start)

	status := resp.StatusCode
	v := model.Verification{
		Usable:     status >= 200 && status < 400,
		Elapsed:    &elapsed,
		HTTPStatus: &status,
		Reason:     model.ReasonOK,
	}
	if !v.Usable {
		v.Reason = model.ReasonBadStatus
	}
	if d, ok := ParseServerTiming(resp.Header.Get("Server-Timing")); ok {
		v.ServerTime = &d
	}
	return v, nil
}

// waitForPort polls the local listener until it accepts or the settle
// delay runs out.
func waitForPort(ctx context.Context, port int, timeout time.Duration) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false
}
