package parser

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// URLParts is a scheme://credential@host:port?query#fragment link split
// into its components. Credential and Fragment are unescaped.
type URLParts struct {
	Scheme     string
	Credential string
	Host       string
	Port       string
	Query      url.Values
	Fragment   string
}

// SplitURL splits a share link. Links net/url refuses, such as a stray
// '%' in the tag or '|' in a password, are split by hand instead.
func SplitURL(line string) (URLParts, error) {
	u, err := url.Parse(line)
	if err != nil {
		return splitLoose(line)
	}

	p := URLParts{
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Port:     u.Port(),
		Query:    u.Query(),
		Fragment: u.Fragment,
	}
	if u.User != nil {
		p.Credential = u.User.Username()
	}
	return p, nil
}

// splitLoose cuts at '#', then '?', then the last '@', then the port.
func splitLoose(line string) (URLParts, error) {
	scheme, rest, ok := strings.Cut(line, "://")
	if !ok || scheme == "" {
		return URLParts{}, errors.New("missing scheme")
	}
	p := URLParts{Scheme: strings.ToLower(scheme)}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		p.Fragment = unescapeOrRaw(rest[i+1:])
		rest = rest[:i]
	}
	var rawQuery string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, rawQuery = rest[:i], rest[i+1:]
	}
	// Malformed pairs are dropped, the rest are kept.
	p.Query, _ = url.ParseQuery(rawQuery)

	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		p.Credential = unescapeOrRaw(rest[:i])
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return URLParts{}, err
	}
	p.Host, p.Port = host, port
	return p, nil
}

func unescapeOrRaw(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}
