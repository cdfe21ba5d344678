package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"find-me-internet/internal/model"

	"github.com/gvcgo/vpnparser/pkgs/outbound"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrMalformed         = errors.New("malformed descriptor")
)

// tempConfig allows us to extract deep fields from the Sing-box JSON
type tempConfig struct {
	TLS struct {
		ServerName string `json:"server_name"`
	} `json:"tls"`
}

// ParseLink turns one descriptor line into an Endpoint. Blank and
// comment lines are reported as ErrMalformed like any other reject.
// It never panics.
func ParseLink(line string) (ep model.Endpoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			ep, err = model.Endpoint{}, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return model.Endpoint{}, fmt.Errorf("%w: empty or comment", ErrMalformed)
	}

	switch {
	case strings.HasPrefix(line, "vmess://"):
		ep, err = parseVMess(line)
	case strings.HasPrefix(line, "vless://"):
		ep, err = parseURL(line, model.SchemeVLESS)
	case strings.HasPrefix(line, "trojan://"):
		ep, err = parseURL(line, model.SchemeTrojan)
	case strings.HasPrefix(line, "ss://"):
		ep, err = parseShadowsocks(line)
	default:
		return model.Endpoint{}, ErrUnsupportedScheme
	}
	if err != nil {
		return model.Endpoint{}, err
	}

	if ep.SNI == "" {
		ep.SNI = lookupSNI(ep.Raw)
	}
	return ep, nil
}

// Extract parses lines in order and assigns 1-based indexes to the
// endpoints it keeps. Rejected lines are dropped.
func Extract(lines []string) []model.Endpoint {
	out := make([]model.Endpoint, 0, len(lines))
	for _, ln := range lines {
		ep, err := ParseLink(ln)
		if err != nil {
			if t := strings.TrimSpace(ln); t != "" && !strings.HasPrefix(t, "#") {
				slog.Debug("descriptor_rejected", "error", err)
			}
			continue
		}
		ep.Index = len(out) + 1
		out = append(out, ep)
	}
	return out
}

// lookupSNI asks vpnparser for the server name it would put in the
// sing-box outbound. Used only when the descriptor carries no explicit SNI.
func lookupSNI(raw string) (sni string) {
	defer func() {
		if recover() != nil {
			sni = ""
		}
	}()

	item := outbound.ParseRawUriToProxyItem(raw, outbound.SingBox)
	if item == nil {
		return ""
	}
	var cfg tempConfig
	if err := json.Unmarshal([]byte(item.GetOutbound()), &cfg); err != nil {
		return ""
	}
	return cfg.TLS.ServerName
}
