package model

import "time"

type UDPStatus string

const (
	UDPReply   UDPStatus = "reply"
	UDPNoReply UDPStatus = "no_reply"
	UDPOSError UDPStatus = "oserror"
	UDPOff     UDPStatus = "off"
)

type TLSStatus string

const (
	TLSOK   TLSStatus = "ok"
	TLSFail TLSStatus = "fail"
	TLSOff  TLSStatus = "off"
)

// Verifier reason tags.
const (
	ReasonOK        = "ok"
	ReasonBadStatus = "bad_status"
	ReasonSkipped   = "skipped"
	ReasonNoEngine  = "no_engine"
	ReasonEngine    = "engine_error"
	ReasonTimeout   = "timeout"
	ReasonRetries   = "retries"
	ReasonRefused   = "refused"
	ReasonDNS       = "dns"
	ReasonFailed    = "failed"
)

// TCPStats is the outcome of a TCP reachability measurement.
type TCPStats struct {
	Avg   *time.Duration `json:"avg,omitempty"` // nil when every attempt failed
	Fails int            `json:"fails"`
	Tries int            `json:"tries"`
}

// OK reports whether at least one attempt succeeded within the retry budget.
func (s TCPStats) OK() bool {
	return s.Avg != nil && s.Fails < s.Tries
}

// UDPStats is the outcome of a single UDP echo probe.
type UDPStats struct {
	RTT    *time.Duration `json:"rtt,omitempty"`
	Status UDPStatus      `json:"status"`
}

// Verification is the outcome of the engine-backed usability probe.
type Verification struct {
	Usable     bool           `json:"usable"`
	Reason     string         `json:"reason"`
	Elapsed    *time.Duration `json:"elapsed,omitempty"`
	ServerTime *time.Duration `json:"server_time,omitempty"` // from the Server-Timing header
	HTTPStatus *int           `json:"http_status,omitempty"`
}

// ScanResult holds every measurement taken for one endpoint in one run.
// Aliveness is not stored; see Alive.
type ScanResult struct {
	Endpoint Endpoint     `json:"endpoint"`
	TCP      TCPStats     `json:"tcp"`
	UDP      UDPStats     `json:"udp"`
	TLS      TLSStatus    `json:"tls"`
	Verify   Verification `json:"verify"`
	Country  string       `json:"country,omitempty"`
}

// Alive derives the classification. When verified is true the engine
// outcome decides; otherwise reachability does.
func (r ScanResult) Alive(verified bool) bool {
	if verified {
		return r.Verify.Usable
	}
	return r.TCP.OK()
}
