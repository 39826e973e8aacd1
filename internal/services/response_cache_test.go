package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"harthio_ai_gateway/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCacheKey(t *testing.T) {
	assert.Equal(t, "what is aa", NormalizeCacheKey("  What is AA?? "))
	assert.Equal(t, "what is aa", NormalizeCacheKey("what   is\taa"))
	assert.Equal(t, NormalizeCacheKey("How does HALT work?"), NormalizeCacheKey("how does halt work"))
}

func TestResponseCacheGetPut(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewResponseCache(2, time.Hour, 120)
	cache.now = func() time.Time { return now }

	response := CachedResponse{Content: "HALT stands for Hungry, Angry, Lonely, Tired.", Usage: llm.Usage{TotalTokens: 40}, ProviderID: "groq", Model: "llama"}

	t.Run("Same normalized key hits twice", func(t *testing.T) {
		cache.Put("What is HALT?", response)

		first, ok := cache.Get("what is halt")
		require.True(t, ok)
		second, ok := cache.Get("WHAT IS HALT!")
		require.True(t, ok)
		assert.Equal(t, first, second)
		assert.Equal(t, response.Content, first.Content)
	})

	t.Run("Expired entries miss", func(t *testing.T) {
		now = now.Add(time.Hour)
		_, ok := cache.Get("what is halt")
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Stats().Size)
	})

	t.Run("Oldest entry is evicted at capacity", func(t *testing.T) {
		cache.Put("first question", response)
		now = now.Add(time.Minute)
		cache.Put("second question", response)
		now = now.Add(time.Minute)
		cache.Put("third question", response)

		_, ok := cache.Get("first question")
		assert.False(t, ok)
		_, ok = cache.Get("second question")
		assert.True(t, ok)
		_, ok = cache.Get("third question")
		assert.True(t, ok)
		assert.Equal(t, int64(1), cache.Stats().Evictions)
	})
}

func TestResponseCacheEligible(t *testing.T) {
	cache := NewResponseCache(10, time.Hour, 40)
	classifier := NewKeywordClassifier()

	eligible := func(text string) bool {
		return cache.Eligible(text, classifier.Classify(text))
	}

	assert.True(t, eligible("What is the HALT technique?"))
	assert.False(t, eligible("What should I do when I feel cravings at night?"), "personal")
	assert.False(t, eligible("How do people celebrate 30 days sober?"), "digits")
	assert.False(t, eligible("Is there any point in trying when you feel hopeless about recovery and everything else?"), "too long")
	assert.False(t, eligible("what's the point"), "crisis adjacent")

	disabled := NewResponseCache(0, time.Hour, 40)
	assert.False(t, disabled.Eligible("What is HALT?", ClassificationResult{InterventionType: InterventionNone}))
}

func TestResponseCacheConcurrentAccess(t *testing.T) {
	cache := NewResponseCache(50, time.Hour, 120)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("question %d", i%5)
			cache.Put(key, CachedResponse{Content: key})
			cache.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, cache.Stats().Size)
}
