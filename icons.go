package costar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const iconCacheMax = 12

type iconEntry struct {
	key    string
	pixels []RGB565
}

// IconCache keeps decoded icon bitmaps in a small LRU keyed by
// path#WxH. Remote (http) icon paths are downloaded once into a local
// cache directory; a Retry-After from the server defers the next
// attempt.
type IconCache struct {
	Client *HTTPClient
	Dir    string

	entries []*iconEntry
	retryAt map[string]time.Time
	now     func() time.Time
}

func NewIconCache(client *HTTPClient, dir string) *IconCache {
	return &IconCache{
		Client:  client,
		Dir:     dir,
		retryAt: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Get returns the decoded pixels for an icon at the given size, loading
// and caching on first use.
func (c *IconCache) Get(path string, w, h int) ([]RGB565, error) {
	key := fmt.Sprintf("%s#%dx%d", path, w, h)
	for i, e := range c.entries {
		if e.key == key {
			// move to front
			copy(c.entries[1:i+1], c.entries[:i])
			c.entries[0] = e
			return e.pixels, nil
		}
	}

	pixels, err := c.load(path, w, h)
	if err != nil {
		return nil, err
	}

	c.entries = append([]*iconEntry{{key: key, pixels: pixels}}, c.entries...)
	if len(c.entries) > iconCacheMax {
		c.entries = c.entries[:iconCacheMax]
	}
	return pixels, nil
}

func (c *IconCache) load(path string, w, h int) ([]RGB565, error) {
	local := path
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		var err error
		local, err = c.fetchRemote(path)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("icon %s: %w", path, err)
	}
	need := w * h * 2
	if len(data) < need {
		return nil, fmt.Errorf("icon %s: %d bytes, need %d", path, len(data), need)
	}

	// raw assets are big-endian RGB565
	pixels := make([]RGB565, w*h)
	for i := range pixels {
		pixels[i] = RGB565(data[2*i])<<8 | RGB565(data[2*i+1])
	}
	return pixels, nil
}

// fetchRemote downloads an icon URL into the cache directory, reusing
// any prior download.
func (c *IconCache) fetchRemote(url string) (string, error) {
	sum := sha1.Sum([]byte(url))
	local := filepath.Join(c.Dir, hex.EncodeToString(sum[:8])+".raw")
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if until, ok := c.retryAt[url]; ok && c.now().Before(until) {
		return "", fmt.Errorf("icon %s: deferred until %s", url, until.Format(time.TimeOnly))
	}

	res, err := c.Client.Do(context.Background(), FetchRequest{URL: url, MaxBytes: ScreenW * ScreenH * 2})
	if err != nil {
		if res != nil {
			if secs, convErr := strconv.Atoi(res.Meta["retry_after"]); convErr == nil && secs > 0 {
				c.retryAt[url] = c.now().Add(time.Duration(secs) * time.Second)
			}
		}
		return "", err
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(local, res.Payload, 0o644); err != nil {
		return "", err
	}
	delete(c.retryAt, url)
	return local, nil
}
