package scanner

import (
	"context"

	"find-me-internet/internal/filter"
	"find-me-internet/internal/model"
)

// Prober measures one endpoint. Implementations must fold every failure
// into the returned result.
type Prober interface {
	Probe(ctx context.Context, ep model.Endpoint) model.ScanResult
}

// Verifier is the engine-backed usability check (tester.Runner).
type Verifier interface {
	Available() bool
	Verify(ctx context.Context, ep model.Endpoint) model.Verification
}

// CountryLookup resolves an IP literal to a country code (geoip.Database).
type CountryLookup interface {
	Lookup(ip string) string
}

// Checker is the production Prober: reachability always, engine
// verification when enabled and the engine exists.
type Checker struct {
	Reach         *filter.Pipeline
	Verifier      Verifier
	VerifyEnabled bool
	Countries     CountryLookup
}

// Verified reports whether aliveness should follow the verifier.
func (c *Checker) Verified() bool {
	return c.VerifyEnabled && c.Verifier != nil && c.Verifier.Available()
}

func (c *Checker) Probe(ctx context.Context, ep model.Endpoint) model.ScanResult {
	reach := c.Reach.Check(ctx, ep)

	r := model.ScanResult{
		Endpoint: ep,
		TCP:      reach.TCP,
		UDP:      reach.UDP,
		TLS:      reach.TLS,
	}

	switch {
	case c.Verified():
		r.Verify = c.Verifier.Verify(ctx, ep)
	case c.VerifyEnabled:
		r.Verify = model.Verification{Reason: model.ReasonNoEngine}
	default:
		r.Verify = model.Verification{Reason: model.ReasonSkipped}
	}

	if c.Countries != nil {
		r.Country = c.Countries.Lookup(ep.Host)
	}
	return r
}
