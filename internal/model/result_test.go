package model

import (
	"testing"
	"time"
)

func TestAlive(t *testing.T) {
	ms := 12 * time.Millisecond

	tests := []struct {
		name     string
		result   ScanResult
		verified bool
		want     bool
	}{
		{"tcp ok, no verifier", ScanResult{TCP: TCPStats{Avg: &ms, Fails: 1, Tries: 2}}, false, true},
		{"tcp all failed", ScanResult{TCP: TCPStats{Fails: 2, Tries: 2}}, false, false},
		{"verifier overrides tcp", ScanResult{TCP: TCPStats{Avg: &ms, Tries: 2}}, true, false},
		{"verifier usable", ScanResult{TCP: TCPStats{Fails: 2, Tries: 2}, Verify: Verification{Usable: true}}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Alive(tt.verified); got != tt.want {
				t.Errorf("Alive(%v) = %v, want %v", tt.verified, got, tt.want)
			}
		})
	}
}

func TestTCPStatsOKRequiresBudget(t *testing.T) {
	ms := time.Millisecond
	if (TCPStats{Avg: &ms, Fails: 0, Tries: 0}).OK() {
		t.Error("zero tries must not count as reachable")
	}
}
