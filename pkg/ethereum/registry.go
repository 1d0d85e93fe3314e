package ethereum

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/cccp-relayer/pkg/config"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

var (
	// ErrUnknownChain is returned when a chain id has no provider.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrNativeChain is returned when the registry does not hold exactly one native chain.
	ErrNativeChain = errors.New("exactly one native chain is required")
)

// Registry holds one provider per configured chain. It is built once at
// startup and read-only afterwards.
type Registry struct {
	providers map[primitives.ChainID]*Provider
	order     []primitives.ChainID
	native    primitives.ChainID
}

// NewRegistry dials every configured chain.
func NewRegistry(ctx context.Context, chains []config.ChainConfig, logger *zap.Logger) (*Registry, error) {
	providers := make([]*Provider, 0, len(chains))
	for i := range chains {
		p, err := Dial(ctx, &chains[i], logger)
		if err != nil {
			for _, opened := range providers {
				opened.Close()
			}
			return nil, err
		}
		providers = append(providers, p)
	}

	registry, err := newRegistry(providers)
	if err != nil {
		for _, opened := range providers {
			opened.Close()
		}
		return nil, err
	}
	return registry, nil
}

func newRegistry(providers []*Provider) (*Registry, error) {
	r := &Registry{providers: make(map[primitives.ChainID]*Provider, len(providers))}
	natives := 0
	for _, p := range providers {
		id := p.Metadata().ID()
		if _, dup := r.providers[id]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", id)
		}
		r.providers[id] = p
		r.order = append(r.order, id)
		if p.Metadata().IsNative() {
			r.native = id
			natives++
		}
	}
	if natives != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNativeChain, natives)
	}
	return r, nil
}

// Get returns the provider of a chain.
func (r *Registry) Get(id primitives.ChainID) (*Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return p, nil
}

// Native returns the native chain provider.
func (r *Registry) Native() *Provider { return r.providers[r.native] }

// Providers returns every provider in configuration order.
func (r *Registry) Providers() []*Provider {
	out := make([]*Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// External returns the providers of every non-native chain.
func (r *Registry) External() []*Provider {
	var out []*Provider
	for _, id := range r.order {
		if id != r.native {
			out = append(out, r.providers[id])
		}
	}
	return out
}

// Close closes every provider.
func (r *Registry) Close() {
	for _, p := range r.providers {
		p.Close()
	}
}
