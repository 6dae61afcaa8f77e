package refreshlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyRefreshLock = "oauth:refresh:lock:%s"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrRefreshInFlight signals that another refresh currently holds the lock
// for the same integration.
var ErrRefreshInFlight = errors.New("refresh_in_flight")

// Guard serializes token refreshes per integration. Two concurrent refreshes
// for the same integration could both read the same refresh token and write
// duplicate access-token rows, so only one may be in flight at a time.
// Backed by redis when configured, otherwise by an in-process keyed mutex.
type Guard struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration

	mu       sync.Mutex
	inFlight map[snowflake.ID]struct{}
}

func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	g := &Guard{
		ttl:      ttl,
		inFlight: make(map[snowflake.ID]struct{}),
	}
	if client != nil {
		g.client = client
		g.script = redis.NewScript(lockReleaseScript)
	}
	return g
}

// Acquire takes the refresh lock for the integration. The returned release
// func must be called once the refresh (or its failure) is complete.
func (g *Guard) Acquire(ctx context.Context, integrationID snowflake.ID) (func(), error) {
	if g.client == nil {
		return g.acquireLocal(integrationID)
	}

	key := fmt.Sprintf(keyRefreshLock, integrationID.String())
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		// Redis being down must not wedge refreshes entirely.
		return g.acquireLocal(integrationID)
	}
	if !ok {
		return nil, ErrRefreshInFlight
	}

	release := func() {
		_ = g.script.Run(context.Background(), g.client, []string{key}, token).Err()
	}
	return release, nil
}

func (g *Guard) acquireLocal(integrationID snowflake.ID) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[integrationID]; held {
		return nil, ErrRefreshInFlight
	}
	g.inFlight[integrationID] = struct{}{}

	release := func() {
		g.mu.Lock()
		delete(g.inFlight, integrationID)
		g.mu.Unlock()
	}
	return release, nil
}
