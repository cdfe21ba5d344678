package tester

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"find-me-internet/internal/model"
	"find-me-internet/internal/parser"
)

const (
	inboundTag  = "in-local"
	proxyTag    = "proxy"
	directTag   = "direct"
	defaultPath = "/"
)

// SingBoxConfig is the minimal structure Sing-box expects
type SingBoxConfig struct {
	Log       LogConfig       `json:"log"`
	Inbounds  []InboundConfig `json:"inbounds"`
	Outbounds []Outbound      `json:"outbounds"`
	Route     RouteConfig     `json:"route"`
}

type LogConfig struct {
	Level    string `json:"level"`
	Disabled bool   `json:"disabled,omitempty"`
}

type InboundConfig struct {
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Listen     string `json:"listen"`
	ListenPort int    `json:"listen_port"`
}

type Outbound struct {
	Type       string       `json:"type"`
	Tag        string       `json:"tag"`
	Server     string       `json:"server,omitempty"`
	ServerPort int          `json:"server_port,omitempty"`
	UUID       string       `json:"uuid,omitempty"`
	Security   string       `json:"security,omitempty"`
	AlterID    *int         `json:"alter_id,omitempty"`
	Flow       string       `json:"flow,omitempty"`
	Method     string       `json:"method,omitempty"`
	Password   string       `json:"password,omitempty"`
	TLS        *OutboundTLS `json:"tls,omitempty"`
	Transport  *Transport   `json:"transport,omitempty"`
}

type OutboundTLS struct {
	Enabled    bool     `json:"enabled"`
	ServerName string   `json:"server_name,omitempty"`
	Insecure   bool     `json:"insecure,omitempty"`
	UTLS       *UTLS    `json:"utls,omitempty"`
	Reality    *Reality `json:"reality,omitempty"`
}

type UTLS struct {
	Enabled     bool   `json:"enabled"`
	Fingerprint string `json:"fingerprint"`
}

type Reality struct {
	Enabled   bool   `json:"enabled"`
	PublicKey string `json:"public_key"`
	ShortID   string `json:"short_id,omitempty"`
}

type Transport struct {
	Type        string            `json:"type"`
	Path        string            `json:"path,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
}

type RouteConfig struct {
	Rules               []RouteRule `json:"rules"`
	AutoDetectInterface bool        `json:"auto_detect_interface"`
}

type RouteRule struct {
	Inbound  []string `json:"inbound"`
	Outbound string   `json:"outbound"`
}

// GenerateConfig creates a JSON config for Sing-box: one loopback
// inbound on localPort routed to the endpoint, plus a direct fallback.
func GenerateConfig(ep model.Endpoint, localPort int) ([]byte, error) {
	ob, err := buildOutbound(ep)
	if err != nil {
		return nil, err
	}

	config := SingBoxConfig{
		Log: LogConfig{Level: "error"},
		Inbounds: []InboundConfig{
			{
				Type:       "mixed", // Supports both SOCKS5 and HTTP
				Tag:        inboundTag,
				Listen:     "127.0.0.1",
				ListenPort: localPort,
			},
		},
		Outbounds: []Outbound{
			ob, // The Proxy being tested
			{Type: "direct", Tag: directTag},
		},
		Route: RouteConfig{
			Rules:               []RouteRule{{Inbound: []string{inboundTag}, Outbound: proxyTag}},
			AutoDetectInterface: true,
		},
	}

	return json.MarshalIndent(config, "", "  ")
}

func buildOutbound(ep model.Endpoint) (Outbound, error) {
	switch ep.Scheme {
	case model.SchemeVMess:
		return vmessOutbound(ep)
	case model.SchemeVLESS:
		return vlessOutbound(ep)
	case model.SchemeTrojan:
		return trojanOutbound(ep)
	case model.SchemeShadowsocks:
		return shadowsocksOutbound(ep)
	default:
		return Outbound{}, fmt.Errorf("unsupported scheme %q", ep.Scheme)
	}
}

func vmessOutbound(ep model.Endpoint) (Outbound, error) {
	v, err := parser.DecodeVMess(ep.Raw)
	if err != nil {
		return Outbound{}, err
	}

	port, err := strconv.Atoi(v.Get("port"))
	if err != nil {
		port = ep.Port
	}
	security := v.Get("scy")
	if security == "" {
		security = "auto"
	}
	alterID := 0
	host := v.Get("host")
	tlsVal := v.Get("tls")

	ob := Outbound{
		Type:       "vmess",
		Tag:        proxyTag,
		Server:     v.Get("add"),
		ServerPort: port,
		UUID:       v.Get("id"),
		Security:   security,
		AlterID:    &alterID,
	}

	// Port 443 implies TLS unless the link turns it off.
	if tlsVal == "tls" || tlsVal == "reality" || (port == 443 && tlsVal != "none") {
		ob.TLS = &OutboundTLS{Enabled: true, ServerName: orDefault(v.Get("sni"), host)}
	}

	path := orDefault(v.Get("path"), defaultPath)
	serviceName := orDefault(v.Get("serviceName"), v.Get("servicename"))
	ob.Transport = transport(orDefault(v.Get("net"), "tcp"), path, host, serviceName)
	return ob, nil
}

func vlessOutbound(ep model.Endpoint) (Outbound, error) {
	u, q, err := splitURL(ep)
	if err != nil {
		return Outbound{}, err
	}

	host := q.Get("host")
	ob := Outbound{
		Type:       "vless",
		Tag:        proxyTag,
		Server:     orDefault(u.Host, ep.Host),
		ServerPort: portOr(u.Port, ep.Port),
		UUID:       strings.TrimSpace(u.Credential),
		Flow:       strings.TrimSpace(q.Get("flow")),
	}

	switch security := strings.TrimSpace(q.Get("security")); security {
	case "tls", "reality":
		ob.TLS = &OutboundTLS{
			Enabled:    true,
			ServerName: orDefault(q.Get("sni"), host),
			Insecure:   q.Get("allowInsecure") == "1" || q.Get("insecure") == "1",
		}
		if fp := strings.TrimSpace(q.Get("fp")); fp != "" {
			ob.TLS.UTLS = &UTLS{Enabled: true, Fingerprint: fp}
		}
		if security == "reality" {
			ob.TLS.Reality = &Reality{Enabled: true, PublicKey: q.Get("pbk"), ShortID: q.Get("sid")}
			if ob.TLS.UTLS == nil {
				// sing-box refuses reality without uTLS.
				ob.TLS.UTLS = &UTLS{Enabled: true, Fingerprint: "chrome"}
			}
		}
	}

	ob.Transport = transport(orDefault(q.Get("type"), "tcp"), orDefault(q.Get("path"), defaultPath), host, q.Get("serviceName"))
	return ob, nil
}

func trojanOutbound(ep model.Endpoint) (Outbound, error) {
	u, q, err := splitURL(ep)
	if err != nil {
		return Outbound{}, err
	}

	ob := Outbound{
		Type:       "trojan",
		Tag:        proxyTag,
		Server:     orDefault(u.Host, ep.Host),
		ServerPort: portOr(u.Port, ep.Port),
		Password:   strings.TrimSpace(u.Credential),
		TLS: &OutboundTLS{
			Enabled:    true,
			ServerName: orDefault(q.Get("sni"), q.Get("peer")),
			Insecure:   q.Get("allowInsecure") == "1",
		},
	}
	ob.Transport = transport(orDefault(q.Get("type"), "tcp"), orDefault(q.Get("path"), defaultPath), q.Get("host"), q.Get("serviceName"))
	return ob, nil
}

func shadowsocksOutbound(ep model.Endpoint) (Outbound, error) {
	creds, _, err := parser.DecodeShadowsocks(ep.Raw)
	if err != nil {
		return Outbound{}, err
	}
	if creds.Method == "" {
		return Outbound{}, fmt.Errorf("shadowsocks descriptor has no method")
	}
	return Outbound{
		Type:       "shadowsocks",
		Tag:        proxyTag,
		Server:     creds.Host,
		ServerPort: creds.Port,
		Method:     creds.Method,
		Password:   creds.Password,
	}, nil
}

// transport returns nil for plain TCP.
func transport(network, path, host, serviceName string) *Transport {
	switch network {
	case "ws":
		t := &Transport{Type: "ws", Path: path}
		if host = strings.TrimSpace(host); host != "" {
			t.Headers = map[string]string{"Host": host}
		}
		return t
	case "grpc":
		return &Transport{Type: "grpc", ServiceName: strings.TrimSpace(serviceName)}
	default:
		return nil
	}
}

func splitURL(ep model.Endpoint) (parser.URLParts, url.Values, error) {
	u, err := parser.SplitURL(ep.Raw)
	if err != nil {
		return parser.URLParts{}, nil, err
	}
	if u.Credential == "" {
		return parser.URLParts{}, nil, fmt.Errorf("%s descriptor has no credential", ep.Scheme)
	}
	return u, u.Query, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return strings.TrimSpace(def)
}

func portOr(s string, def int) int {
	if p, err := strconv.Atoi(s); err == nil && p > 0 {
		return p
	}
	return def
}
