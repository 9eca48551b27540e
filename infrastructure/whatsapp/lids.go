package whatsapp

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"github.com/wafilter/wafilter/pkg/waid"
)

const (
	lidCacheTTL     = time.Hour
	lidCacheJanitor = 10 * time.Minute
	lidLookupLimit  = 3 * time.Second
)

// lidCache caches linked-identifier lookups so repeated messages from the
// same sender skip the device store.
type lidCache struct {
	client *whatsmeow.Client
	cache  *gocache.Cache
}

func newLIDCache(client *whatsmeow.Client) *lidCache {
	return &lidCache{
		client: client,
		cache:  gocache.New(lidCacheTTL, lidCacheJanitor),
	}
}

func (c *lidCache) resolve(lid types.JID) (types.JID, bool) {
	lid = lid.ToNonAD()
	if lid.User == "" {
		return types.JID{}, false
	}
	if cached, ok := c.cache.Get(lid.User); ok {
		if pn, ok := cached.(types.JID); ok {
			return pn, true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), lidLookupLimit)
	defer cancel()
	pn, err := c.client.Store.LIDs.GetPNForLID(ctx, lid)
	if err != nil || pn.IsEmpty() {
		return types.JID{}, false
	}
	c.cache.SetDefault(lid.User, pn)
	return pn, true
}

// ResolveLID maps bare linked-identifier digits to the phone digits behind
// them. The engine falls back to this when a payload has no senderPn hint.
func (a *Adapter) ResolveLID(lid string) (string, bool) {
	if lid == "" {
		return "", false
	}
	pn, ok := a.lids.resolve(types.JID{User: lid, Server: types.HiddenUserServer})
	if !ok {
		return "", false
	}
	return waid.NormalizePhone(pn.User), true
}
