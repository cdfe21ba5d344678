package tester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"find-me-internet/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, model.ReasonTimeout},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), model.ReasonTimeout},
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, model.ReasonRefused},
		{&net.DNSError{Err: "no such host", Name: "x.invalid"}, model.ReasonDNS},
		{&net.OpError{Op: "socks connect", Err: errors.New("unknown error host unreachable")}, model.ReasonDNS},
		{&net.OpError{Op: "socks connect", Err: errors.New("unknown error network unreachable")}, model.ReasonDNS},
		{&net.OpError{Op: "socks connect", Err: errors.New("unknown error general SOCKS server failure")}, model.ReasonRetries},
		{fmt.Errorf("read: %w", io.EOF), model.ReasonRetries},
		{errors.New("something odd"), model.ReasonFailed},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestParseServerTiming(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
		ok     bool
	}{
		{"cfRequestDuration;dur=12.5", 12500 * time.Microsecond, true},
		{"cache;desc=hit, total;dur=40", 40 * time.Millisecond, true},
		{`app;dur="3"`, 3 * time.Millisecond, true},
		{"", 0, false},
		{"miss", 0, false},
		{"x;dur=abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseServerTiming(tt.header)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseServerTiming(%q) = %v, %v; want %v, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
