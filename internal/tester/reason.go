package tester

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"find-me-internet/internal/model"
)

// classify maps a probe error to a short reason tag.
func classify(err error) string {
	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return model.ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return model.ReasonRefused
	case errors.As(err, &dnsErr):
		return model.ReasonDNS
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		// The local listener answered but the upstream hop dropped us.
		return model.ReasonRetries
	case errors.As(err, &opErr) && opErr.Op == "socks connect":
		// Names resolve on the far side, so an upstream resolution
		// failure comes back as a host or network unreachable reply.
		if opErr.Err != nil {
			if msg := opErr.Err.Error(); strings.Contains(msg, "host unreachable") || strings.Contains(msg, "network unreachable") {
				return model.ReasonDNS
			}
		}
		return model.ReasonRetries
	default:
		return model.ReasonFailed
	}
}

// ParseServerTiming returns the first dur= value of a Server-Timing
// header, in milliseconds.
func ParseServerTiming(h string) (time.Duration, bool) {
	for _, metric := range strings.Split(h, ",") {
		for _, param := range strings.Split(metric, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(k, "dur") {
				continue
			}
			ms, err := strconv.ParseFloat(strings.Trim(v, `"`), 64)
			if err != nil || ms < 0 {
				continue
			}
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	return 0, false
}
