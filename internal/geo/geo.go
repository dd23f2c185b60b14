// Package geo resolves remote addresses to coarse locations, best-effort.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/peervoice/peervoice/internal/core"
)

const defaultCacheSize = 4096

// Resolver fetches the location for one public address.
type Resolver func(ctx context.Context, ip string) (core.Location, error)

type Lookup struct {
	cache    *lru.Cache[string, core.Location]
	resolver Resolver
}

func New(endpoint string, cacheSize int) (*Lookup, error) {
	return NewWithResolver(httpResolver(endpoint), cacheSize)
}

func NewWithResolver(resolver Resolver, cacheSize int) (*Lookup, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, core.Location](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Lookup{cache: cache, resolver: resolver}, nil
}

// Lookup returns the location for ip, or not-found for private, loopback
// and unparsable addresses, and for resolver failures.
func (g *Lookup) Lookup(ctx context.Context, ip string) (core.Location, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return core.Location{}, false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return core.Location{}, false
	}
	if loc, ok := g.cache.Get(ip); ok {
		return loc, true
	}
	loc, err := g.resolver(ctx, ip)
	if err != nil {
		log.Debug().Err(err).Str("module", "geo").Str("ip", ip).Msg("lookup failed")
		return core.Location{}, false
	}
	g.cache.Add(ip, loc)
	return loc, true
}

func httpResolver(endpoint string) Resolver {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context, ip string) (core.Location, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/"+ip, nil)
		if err != nil {
			return core.Location{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return core.Location{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return core.Location{}, fmt.Errorf("geo endpoint status %d", resp.StatusCode)
		}
		var loc core.Location
		if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
			return core.Location{}, err
		}
		return loc, nil
	}
}
