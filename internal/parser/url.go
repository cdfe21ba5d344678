package parser

import (
	"fmt"
	"strings"

	"find-me-internet/internal/model"
)

// parseURL handles the scheme://credential@host:port?query#fragment
// family (vless, trojan).
func parseURL(line string, scheme model.Scheme) (model.Endpoint, error) {
	u, err := SplitURL(line)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Scheme != string(scheme) {
		return model.Endpoint{}, fmt.Errorf("%w: scheme %q", ErrMalformed, u.Scheme)
	}

	host := u.Host
	port, ok := parsePort(u.Port)
	if host == "" || !ok {
		return model.Endpoint{}, fmt.Errorf("%w: missing host or port", ErrMalformed)
	}

	q := u.Query
	network := strings.TrimSpace(q.Get("type"))
	if network == "" {
		network = "tcp"
	}

	var sni string
	switch scheme {
	case model.SchemeTrojan:
		sni = firstNonEmpty(q.Get("sni"), q.Get("peer"))
	default:
		sni = firstNonEmpty(q.Get("sni"), q.Get("host"))
	}

	return model.Endpoint{
		Scheme:  scheme,
		Host:    host,
		Port:    port,
		Network: network,
		Tag:     strings.TrimSpace(u.Fragment),
		SNI:     sni,
		Raw:     line,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
