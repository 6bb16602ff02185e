package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// responseCache remembers successful resolutions keyed by the
// normalized query plus the canonical input document. A hit is what
// makes the exact arm servable.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]interface{}
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]map[string]interface{})}
}

// key hashes pattern and input together. Map keys marshal sorted, so
// the same document always produces the same key.
func (c *responseCache) key(pattern string, input map[string]interface{}) string {
	doc, err := json.Marshal(input)
	if err != nil {
		doc = []byte{}
	}
	sum := sha256.Sum256(append([]byte(pattern+"\x00"), doc...))
	return hex.EncodeToString(sum[:16])
}

func (c *responseCache) get(key string) (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	output, ok := c.entries[key]
	return output, ok
}

func (c *responseCache) put(key string, output map[string]interface{}) {
	c.mu.Lock()
	c.entries[key] = output
	c.mu.Unlock()
}
