package process

// Cache maps source URLs to rewritten local relative paths. One instance is
// scoped to a single document pass and shared by the three rewriters, so a
// URL repeated across syntaxes within the same document is fetched at most
// once and always rewritten to the same path. Never accessed concurrently.
type Cache struct {
	paths map[string]string
}

// NewCache returns an empty per-document cache.
func NewCache() *Cache {
	return &Cache{paths: make(map[string]string)}
}

// Resolve returns the local path for rawURL, calling fetch to produce and
// insert it on first use. A failed fetch is not cached, so a later occurrence
// of the same URL gets its own attempt.
func (c *Cache) Resolve(rawURL string, fetch func(string) (string, error)) (string, error) {
	if local, ok := c.paths[rawURL]; ok {
		return local, nil
	}
	local, err := fetch(rawURL)
	if err != nil {
		return "", err
	}
	c.paths[rawURL] = local
	return local, nil
}

// Len reports how many URLs have been resolved so far.
func (c *Cache) Len() int {
	return len(c.paths)
}
