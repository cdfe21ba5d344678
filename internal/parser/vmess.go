package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"find-me-internet/internal/model"
)

var vmessRe = regexp.MustCompile(`^vmess://([A-Za-z0-9+/=_-]+)`)

// VMess is the decoded JSON body of a vmess descriptor. Share links in
// the wild mix strings and numbers for the same key, so values are read
// through Get.
type VMess map[string]any

// Get returns the trimmed string form of key, or "" when absent.
func (v VMess) Get(key string) string {
	switch x := v[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// DecodeVMess extracts and decodes the payload of a vmess descriptor.
func DecodeVMess(raw string) (VMess, error) {
	m := vmessRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return nil, fmt.Errorf("%w: no vmess payload", ErrMalformed)
	}
	data, err := DecodeBase64(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: vmess base64: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader(bytes.ToValidUTF8(data, []byte("�"))))
	dec.UseNumber()
	var v VMess
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: vmess json: %v", ErrMalformed, err)
	}
	return v, nil
}

func parseVMess(line string) (model.Endpoint, error) {
	m := vmessRe.FindStringSubmatch(line)
	if m == nil {
		return model.Endpoint{}, fmt.Errorf("%w: no vmess payload", ErrMalformed)
	}
	// Trailing junk after the token is cut off.
	raw := "vmess://" + m[1]

	v, err := DecodeVMess(raw)
	if err != nil {
		return model.Endpoint{}, err
	}

	host := v.Get("add")
	if host == "" || strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return model.Endpoint{}, fmt.Errorf("%w: vmess host %q", ErrMalformed, host)
	}
	port, ok := parsePort(v.Get("port"))
	if !ok {
		return model.Endpoint{}, fmt.Errorf("%w: vmess port %q", ErrMalformed, v.Get("port"))
	}
	network := v.Get("net")
	if network == "" {
		network = "tcp"
	}
	sni := v.Get("sni")
	if sni == "" {
		sni = v.Get("host")
	}

	return model.Endpoint{
		Scheme:  model.SchemeVMess,
		Host:    host,
		Port:    port,
		Network: network,
		Tag:     v.Get("ps"),
		SNI:     sni,
		Raw:     raw,
	}, nil
}
