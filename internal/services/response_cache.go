package services

import (
	"container/list"
	"strings"
	"sync"
	"time"
	"unicode"

	"harthio_ai_gateway/internal/llm"
)

type CachedResponse struct {
	Content    string    `json:"content"`
	Usage      llm.Usage `json:"usage"`
	ProviderID string    `json:"provider_id"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type cacheItem struct {
	key      string
	response CachedResponse
}

// ResponseCache memoizes provider responses for short, generic questions.
// Entries expire after ttl and the oldest entry is evicted once maxEntries
// is reached. Safe for concurrent use.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	maxLength  int
	now        func() time.Time
	stats      CacheStats
}

func NewResponseCache(maxEntries int, ttl time.Duration, maxLength int) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		maxLength:  maxLength,
		now:        time.Now,
	}
}

// NormalizeCacheKey lowercases, strips punctuation and collapses whitespace.
func NormalizeCacheKey(message string) string {
	var sb strings.Builder
	sb.Grow(len(message))
	for _, r := range strings.ToLower(message) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

var personalTerms = []string{
	"i", "im", "ive", "id", "ill", "me", "my", "mine", "myself", "we", "our", "us",
}

// Eligible reports whether a message may be served from or stored in the cache.
func (c *ResponseCache) Eligible(message string, classification ClassificationResult) bool {
	if c.maxEntries <= 0 || c.ttl <= 0 {
		return false
	}
	key := NormalizeCacheKey(message)
	if key == "" || len(key) > c.maxLength {
		return false
	}
	if classification.CrisisLevel != CrisisNone ||
		classification.InterventionType != InterventionNone ||
		classification.Sentiment == SentimentNegative ||
		classification.Sentiment == SentimentCrisis {
		return false
	}
	if strings.IndexFunc(key, unicode.IsDigit) >= 0 {
		return false
	}
	return !anyTerm(padTerms(message), personalTerms)
}

func (c *ResponseCache) Get(message string) (*CachedResponse, bool) {
	key := NormalizeCacheKey(message)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	item := el.Value.(*cacheItem)
	if c.expired(item) {
		c.removeElement(el)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	resp := item.response
	return &resp, true
}

// Put stores a response. A racing duplicate Put simply replaces the entry.
func (c *ResponseCache) Put(message string, response CachedResponse) {
	if c.maxEntries <= 0 {
		return
	}
	key := NormalizeCacheKey(message)
	if response.CreatedAt.IsZero() {
		response.CreatedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	c.entries[key] = c.order.PushBack(&cacheItem{key: key, response: response})

	for c.order.Len() > 0 {
		front := c.order.Front()
		if c.order.Len() <= c.maxEntries && !c.expired(front.Value.(*cacheItem)) {
			break
		}
		c.removeElement(front)
		c.stats.Evictions++
	}
}

func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Size = c.order.Len()
	return stats
}

func (c *ResponseCache) expired(item *cacheItem) bool {
	return c.now().Sub(item.response.CreatedAt) >= c.ttl
}

func (c *ResponseCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheItem).key)
}
