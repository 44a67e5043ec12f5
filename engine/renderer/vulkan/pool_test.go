package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockPoolSerializesQueueCalls(t *testing.T) {
	pool := NewVulkanLockPool()

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLockPoolReturnsCallError(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")

	assert.ErrorIs(t, pool.SafeCall(ResourceManagement, func() error { return boom }), boom)
	assert.NoError(t, pool.SafeCall(ResourceManagement, func() error { return nil }))
}

func TestLockPoolGroupsAreIndependent(t *testing.T) {
	pool := NewVulkanLockPool()

	err := pool.SafeCall(SwapchainManagement, func() error {
		// A different group must not deadlock while the first one is held.
		return pool.SafeCall(ResourceManagement, func() error { return nil })
	})
	assert.NoError(t, err)
}
