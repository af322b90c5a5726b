package federation

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/nodeweave/nodeweave/pkg/auth"
)

// ViewerGrant is what a redeemed viewer token establishes: a federated
// viewer session acting as ViewerPUID. It never carries local credentials.
type ViewerGrant struct {
	ViewerPUID string
	TargetPUID string
	Settings   string
}

// ViewerBroker mints and redeems short-lived viewer tokens. Tokens are held
// only in memory; an unredeemed token simply ages out.
type ViewerBroker struct {
	tokens *ttlcache.Cache[string, ViewerGrant]
}

func NewViewerBroker(ttl time.Duration) *ViewerBroker {
	cache := ttlcache.New[string, ViewerGrant](
		ttlcache.WithTTL[string, ViewerGrant](ttl),
		ttlcache.WithDisableTouchOnHit[string, ViewerGrant](),
	)
	go cache.Start()
	return &ViewerBroker{tokens: cache}
}

// Issue mints a token for a viewer authenticated on their home node. Only
// reachable through a signed request, so a node can only ever speak for its
// own users.
func (b *ViewerBroker) Issue(viewerPUID, targetPUID, settings string) (string, error) {
	token, err := auth.NewViewerToken()
	if err != nil {
		return "", err
	}
	b.tokens.Set(token, ViewerGrant{
		ViewerPUID: viewerPUID,
		TargetPUID: targetPUID,
		Settings:   settings,
	}, ttlcache.DefaultTTL)
	return token, nil
}

// Redeem consumes the token. A token redeems exactly once; the second caller
// gets nothing.
func (b *ViewerBroker) Redeem(token string) (ViewerGrant, bool) {
	item := b.tokens.Get(token)
	if item == nil {
		return ViewerGrant{}, false
	}
	b.tokens.Delete(token)
	return item.Value(), true
}
