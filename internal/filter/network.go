package filter

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"find-me-internet/internal/model"
)

// Pipeline runs the cheap transport-level checks for one endpoint.
// It keeps no state between calls and is safe for concurrent use.
type Pipeline struct {
	TCPTries   int
	TCPTimeout time.Duration
	UDPEnabled bool
	UDPTimeout time.Duration
	TLSEnabled bool
}

func NewPipeline(tries int, tcpTimeout time.Duration) *Pipeline {
	return &Pipeline{TCPTries: tries, TCPTimeout: tcpTimeout, UDPTimeout: 2 * time.Second}
}

// Reachability is what the pipeline learned about an endpoint.
type Reachability struct {
	TCP model.TCPStats
	UDP model.UDPStats
	TLS model.TLSStatus
}

func (f *Pipeline) Check(ctx context.Context, ep model.Endpoint) Reachability {
	target := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	log := slog.With("target", target, "protocol", ep.Scheme)

	r := Reachability{
		UDP: model.UDPStats{Status: model.UDPOff},
		TLS: model.TLSOff,
	}

	// 1. TCP Connectivity
	r.TCP = MeasureTCP(ctx, ep.Host, ep.Port, f.TCPTries, f.TCPTimeout)
	if !r.TCP.OK() {
		log.Debug("tcp_connect_failed", "fails", r.TCP.Fails)
	}

	// 2. UDP echo
	if f.UDPEnabled {
		r.UDP = MeasureUDP(ctx, ep.Host, ep.Port, f.UDPTimeout)
	}

	// 3. TLS Handshake, only worth trying if TCP answered
	if f.TLSEnabled && r.TCP.OK() {
		sni := ep.SNI
		if sni == "" {
			sni = ep.Host // Fallback for handshake
		}
		startTLS := time.Now()
		if CheckTLS(ctx, ep.Host, ep.Port, sni, f.TCPTimeout) {
			r.TLS = model.TLSOK
		} else {
			log.Debug("tls_handshake_failed", "sni", sni, "duration", time.Since(startTLS))
			r.TLS = model.TLSFail
		}
	}

	return r
}

// MeasureTCP opens and immediately closes tries connections, timing each
// establishment. Failures are counted, never returned.
func MeasureTCP(ctx context.Context, host string, port, tries int, timeout time.Duration) model.TCPStats {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	stats := model.TCPStats{Tries: tries}
	var total time.Duration
	var ok int
	for i := 0; i < tries; i++ {
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			stats.Fails++
			continue
		}
		total += time.Since(start)
		ok++
		conn.Close()
	}

	if ok > 0 {
		avg := total / time.Duration(ok)
		stats.Avg = &avg
	}
	return stats
}

// MeasureUDP sends one probe byte and waits for any reply. Silence is
// reported as UDPNoReply; it is not an error.
func MeasureUDP(ctx context.Context, host string, port int, timeout time.Duration) model.UDPStats {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return model.UDPStats{Status: model.UDPOSError}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return model.UDPStats{Status: model.UDPOSError}
	}

	start := time.Now()
	if _, err := conn.Write([]byte{0x00}); err != nil {
		return model.UDPStats{Status: model.UDPOSError}
	}

	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return model.UDPStats{Status: model.UDPNoReply}
		}
		return model.UDPStats{Status: model.UDPOSError}
	}
	rtt := time.Since(start)
	return model.UDPStats{RTT: &rtt, Status: model.UDPReply}
}

// CheckTLS reports whether the server completes a TLS handshake for sni.
func CheckTLS(ctx context.Context, host string, port int, sni string, timeout time.Duration) bool {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	// We skip verification because many proxies use self-signed certs or Reality.
	// The goal is to check if the server *speaks* TLS, not if the cert is trusted by Root CAs.
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         sni,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
