package parser

import (
	"fmt"
	"net/url"
	"strings"

	"find-me-internet/internal/model"
)

// SSCredentials is what a shadowsocks descriptor carries besides its tag.
type SSCredentials struct {
	Method   string
	Password string
	Host     string
	Port     int
}

// DecodeShadowsocks accepts ss://method:password@host:port,
// ss://BASE64(method:password)@host:port and ss://BASE64(method:password@host:port),
// each optionally followed by ?query and #tag.
func DecodeShadowsocks(raw string) (SSCredentials, string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "ss://") {
		return SSCredentials{}, "", fmt.Errorf("%w: not shadowsocks", ErrMalformed)
	}

	var tag string
	if i := strings.Index(s, "#"); i >= 0 {
		frag := s[i+1:]
		if dec, err := url.PathUnescape(frag); err == nil {
			frag = dec
		}
		tag = strings.TrimSpace(frag)
		s = s[:i]
	}
	body, _, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(s, "ss://")), "?")

	var userinfo, addr string
	if left, right, ok := strings.Cut(body, "@"); ok {
		userinfo, addr = left, right
		if !strings.Contains(userinfo, ":") {
			dec, err := DecodeBase64(userinfo)
			if err != nil {
				return SSCredentials{}, "", fmt.Errorf("%w: ss userinfo: %v", ErrMalformed, err)
			}
			userinfo = string(dec)
		} else if dec, err := url.PathUnescape(userinfo); err == nil {
			userinfo = dec
		}
	} else {
		dec, err := DecodeBase64(body)
		if err != nil {
			return SSCredentials{}, "", fmt.Errorf("%w: ss body: %v", ErrMalformed, err)
		}
		i := strings.LastIndex(string(dec), "@")
		if i < 0 {
			return SSCredentials{}, "", fmt.Errorf("%w: ss body has no address", ErrMalformed)
		}
		userinfo, addr = string(dec[:i]), string(dec[i+1:])
	}

	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return SSCredentials{}, "", fmt.Errorf("%w: ss address %q", ErrMalformed, addr)
	}
	host := strings.Trim(addr[:i], "[]")
	port, ok := parsePort(addr[i+1:])
	if host == "" || !ok {
		return SSCredentials{}, "", fmt.Errorf("%w: ss address %q", ErrMalformed, addr)
	}

	method, password, _ := strings.Cut(userinfo, ":")
	return SSCredentials{
		Method:   strings.TrimSpace(method),
		Password: strings.TrimSpace(password),
		Host:     host,
		Port:     port,
	}, tag, nil
}

func parseShadowsocks(line string) (model.Endpoint, error) {
	creds, tag, err := DecodeShadowsocks(line)
	if err != nil {
		return model.Endpoint{}, err
	}
	return model.Endpoint{
		Scheme:  model.SchemeShadowsocks,
		Host:    creds.Host,
		Port:    creds.Port,
		Network: "tcp",
		Tag:     tag,
		Raw:     line,
	}, nil
}
