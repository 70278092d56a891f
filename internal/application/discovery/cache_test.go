package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKnownCache_UnknownAddressEnqueues(t *testing.T) {
	c := newKnownCache()
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, time.Now()))
}

func TestKnownCache_PendingAddressNotRequeued(t *testing.T) {
	c := newKnownCache()
	now := time.Now()
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now))
	assert.False(t, c.shouldEnqueue("0xabc", 24*time.Hour, now), "already pending, not requeued")
}

func TestKnownCache_KnownFreshNotRequeued(t *testing.T) {
	c := newKnownCache()
	now := time.Now()
	c.seed(map[string]time.Time{"0xabc": now})
	assert.False(t, c.shouldEnqueue("0xabc", 24*time.Hour, now.Add(time.Hour)))
}

func TestKnownCache_KnownStaleRequeues(t *testing.T) {
	c := newKnownCache()
	now := time.Now()
	c.seed(map[string]time.Time{"0xabc": now})
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now.Add(25*time.Hour)))
}

func TestKnownCache_MarkDoneAllowsCooldownCycle(t *testing.T) {
	c := newKnownCache()
	now := time.Now()
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now))
	c.markDone("0xabc", now)
	assert.False(t, c.shouldEnqueue("0xabc", 24*time.Hour, now.Add(time.Hour)))
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now.Add(25*time.Hour)))
}

func TestKnownCache_MarkFailedAllowsRetry(t *testing.T) {
	c := newKnownCache()
	now := time.Now()
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now))
	c.markFailed("0xabc")
	assert.True(t, c.shouldEnqueue("0xabc", 24*time.Hour, now), "a failed analysis stays unknown and can be retried immediately")
}
