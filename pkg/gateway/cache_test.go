package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*RedisValidationCache, *miniredis.Miniredis) {
	t.Helper()
	g := NewWithT(t)
	mr, err := miniredis.Run()
	g.Expect(err).ToNot(HaveOccurred())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisValidationCache(client, zap.NewNop()), mr
}

func TestValidationCacheMissWhenEmpty(t *testing.T) {
	g := NewWithT(t)
	cache, _ := newTestCache(t)
	_, ok := cache.Get(context.Background(), "agent-1")
	g.Expect(ok).To(BeFalse())
}

func TestValidationCacheHitAfterSet(t *testing.T) {
	g := NewWithT(t)
	cache, _ := newTestCache(t)
	want := IdentityResult{Valid: true, AgentID: "agent-1", DeveloperID: "dev-1"}
	cache.Set(context.Background(), "agent-1", want)

	got, ok := cache.Get(context.Background(), "agent-1")
	g.Expect(ok).To(BeTrue())
	g.Expect(got).To(Equal(want))
}

func TestValidationCacheExpiresAfterTTL(t *testing.T) {
	g := NewWithT(t)
	cache, mr := newTestCache(t)
	cache.Set(context.Background(), "agent-1", IdentityResult{Valid: true, AgentID: "agent-1"})

	mr.FastForward(validationCacheTTL + time.Second)

	_, ok := cache.Get(context.Background(), "agent-1")
	g.Expect(ok).To(BeFalse())
}

func TestValidationCacheKeysAreIsolatedPerAgent(t *testing.T) {
	g := NewWithT(t)
	cache, _ := newTestCache(t)
	cache.Set(context.Background(), "agent-1", IdentityResult{Valid: true, AgentID: "agent-1"})

	_, ok := cache.Get(context.Background(), "agent-2")
	g.Expect(ok).To(BeFalse())
}
