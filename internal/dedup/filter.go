package dedup

import (
	"sync"

	"find-me-internet/internal/model"
)

type Filter struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

func New() *Filter {
	return &Filter{
		seen: make(map[string]struct{}),
	}
}

// Seen reports whether an identical descriptor was already offered.
// Two links to the same host:port with different credentials are distinct.
func (f *Filter) Seen(ep model.Endpoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.seen[ep.Raw]; exists {
		return true
	}
	f.seen[ep.Raw] = struct{}{}
	return false
}

// Unique drops repeated descriptors and renumbers the survivors.
func Unique(eps []model.Endpoint) []model.Endpoint {
	f := New()
	out := make([]model.Endpoint, 0, len(eps))
	for _, ep := range eps {
		if f.Seen(ep) {
			continue
		}
		ep.Index = len(out) + 1
		out = append(out, ep)
	}
	return out
}
