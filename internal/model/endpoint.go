package model

type Scheme string

const (
	SchemeVMess       Scheme = "vmess"
	SchemeVLESS       Scheme = "vless"
	SchemeTrojan      Scheme = "trojan"
	SchemeShadowsocks Scheme = "ss"
)

// Endpoint is one proxy target extracted from a descriptor line.
// It is never mutated after parsing.
type Endpoint struct {
	// --- Identity ---
	Index   int    `json:"index"` // 1-based position among parsed endpoints, display only
	Scheme  Scheme `json:"scheme"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Network string `json:"network"` // tcp, ws, grpc, ...
	Tag     string `json:"tag"`

	// --- Enrichment ---
	SNI string `json:"sni"`

	// Raw is the descriptor exactly as it appeared in the input (trimmed).
	Raw string `json:"link"`
}
