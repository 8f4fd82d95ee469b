package providers

import (
	"fmt"
	"strings"
)

// Registry resolves provider names. The default provider is the fallback
// target for gateway calls.
type Registry struct {
	providers   map[string]Provider
	defaultName string
}

func NewRegistry(defaultName string, ps ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(ps)), defaultName: defaultName}
	for _, p := range ps {
		if p == nil {
			continue
		}
		r.providers[p.Name()] = p
	}
	if _, ok := r.providers[defaultName]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", defaultName)
	}
	return r, nil
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Default() Provider {
	return r.providers[r.defaultName]
}

func (r *Registry) DefaultName() string {
	return r.defaultName
}

// ParseModelRef splits "provider/model". A bare model name resolves to the
// given fallback provider.
func ParseModelRef(ref, fallbackProvider string) (provider, model string) {
	ref = strings.TrimSpace(ref)
	if name, m, ok := strings.Cut(ref, "/"); ok && name != "" && m != "" {
		return name, m
	}
	return fallbackProvider, ref
}
