package rest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNewRouteBucketKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		scope      RouteScope
		wantPath   string
		wantBucket string
	}{
		{
			name:       "unscoped",
			path:       "/gateway/bot",
			wantPath:   "/gateway/bot",
			wantBucket: "/gateway/bot-::",
		},
		{
			name:       "channel",
			path:       "/channels/{channel_id}/messages",
			scope:      RouteScope{ChannelID: 123},
			wantPath:   "/channels/123/messages",
			wantBucket: "/channels/{channel_id}/messages-:123:",
		},
		{
			name:       "guild and channel",
			path:       "/guilds/{guild_id}/channels",
			scope:      RouteScope{GuildID: 9, ChannelID: 10},
			wantPath:   "/guilds/9/channels",
			wantBucket: "/guilds/{guild_id}/channels-9:10:",
		},
		{
			name:       "webhook",
			path:       "/webhooks/{webhook_id}/{webhook_token}",
			scope:      RouteScope{WebhookID: 55, WebhookToken: "tok"},
			wantPath:   "/webhooks/55/tok",
			wantBucket: "/webhooks/{webhook_id}/{webhook_token}-::55:tok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			route := NewRoute(http.MethodPost, tt.path, tt.scope)

			assert.Equal(t, http.MethodPost, route.Method)
			assert.Equal(t, tt.wantPath, route.Path)
			assert.Equal(t, tt.wantBucket, route.Bucket)
		})
	}
}

func TestRoutesShareBucketOnlyWithSameScope(t *testing.T) {
	t.Parallel()

	a := NewRoute(http.MethodGet, "/channels/{channel_id}", RouteScope{ChannelID: discord.Snowflake(1)})
	b := NewRoute(http.MethodGet, "/channels/{channel_id}", RouteScope{ChannelID: discord.Snowflake(2)})
	c := NewRoute(http.MethodPatch, "/channels/{channel_id}", RouteScope{ChannelID: discord.Snowflake(1)})

	assert.NotEqual(t, a.Bucket, b.Bucket)
	assert.Equal(t, a.Bucket, c.Bucket)
}

func TestBucketNeverHasTwoHolders(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()
	ctx := context.Background()

	var (
		holders = atomic.NewInt32(0)
		maxSeen = atomic.NewInt32(0)
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			bucket, err := rl.Acquire(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}

			n := holders.Inc()
			for {
				seen := maxSeen.Load()
				if n <= seen || maxSeen.CompareAndSwap(seen, n) {
					break
				}
			}

			time.Sleep(2 * time.Millisecond)
			holders.Dec()

			bucket.Release()
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 1, rl.Buckets())
}

func TestBucketDeferDelaysNextAcquire(t *testing.T) {
	t.Parallel()

	const delay = 200 * time.Millisecond

	rl := NewRateLimiter()
	ctx := context.Background()

	bucket, err := rl.Acquire(ctx, "deferred")
	require.NoError(t, err)

	bucket.Defer(delay)
	bucket.Defer(time.Hour)
	released := time.Now()
	bucket.Release()

	assert.True(t, bucket.Locked())

	other, err := rl.Acquire(ctx, "other")
	require.NoError(t, err)
	assert.Less(t, time.Since(released), delay, "other buckets are unaffected")
	other.Release()

	again, err := rl.Acquire(ctx, "deferred")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(released), delay)
	assert.Same(t, bucket, again)

	again.Release()
	assert.False(t, again.Locked())
}

func TestBucketAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter()

	bucket, err := rl.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer bucket.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = rl.Acquire(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGlobalLockBlocksAllBuckets(t *testing.T) {
	t.Parallel()

	const delay = 150 * time.Millisecond

	rl := NewRateLimiter()

	require.NoError(t, rl.SetGlobalLock(delay))
	locked := time.Now()

	assert.True(t, rl.IsGloballyLocked())
	assert.ErrorIs(t, rl.SetGlobalLock(delay), ErrGlobalLockAlreadyLocked)

	bucket, err := rl.Acquire(context.Background(), "any")
	require.NoError(t, err)
	bucket.Release()

	assert.GreaterOrEqual(t, time.Since(locked), delay)
	assert.False(t, rl.IsGloballyLocked())

	require.NoError(t, rl.SetGlobalLock(time.Millisecond), "gate can be tripped again once reopened")
}
