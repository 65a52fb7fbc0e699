package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Cached memoizes provider lookups. Unknown ids are not cached so a newly
// onboarded provider becomes bookable without waiting for expiry.
type Cached struct {
	next  Directory
	cache *cache.Cache
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Lookup(ctx context.Context, id uuid.UUID) (*Provider, error) {
	if v, found := c.cache.Get(id.String()); found {
		p := v.(Provider)
		return &p, nil
	}

	p, err := c.next.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(id.String(), *p, cache.DefaultExpiration)
	return p, nil
}

// Invalidate drops a cached provider, e.g. after its schedule changes.
func (c *Cached) Invalidate(id uuid.UUID) {
	c.cache.Delete(id.String())
}
