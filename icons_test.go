package costar

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeRawIcon(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, w*h*2), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIconCacheDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "px.raw")
	// one big-endian cyan pixel
	if err := os.WriteFile(path, []byte{0x07, 0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewIconCache(nil, "")
	pix, err := c.Get(path, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pix[0] != 0x07FF {
		t.Errorf("pixel = %04x", pix[0])
	}
}

func TestIconCacheShortFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRawIcon(t, dir, "small.raw", 2, 2)
	c := NewIconCache(nil, "")
	if _, err := c.Get(path, 10, 10); err == nil {
		t.Error("undersized asset should fail")
	}
}

func TestIconCacheLRU(t *testing.T) {
	dir := t.TempDir()
	c := NewIconCache(nil, "")

	for i := 0; i < iconCacheMax+3; i++ {
		path := writeRawIcon(t, dir, fmt.Sprintf("i%d.raw", i), 2, 2)
		if _, err := c.Get(path, 2, 2); err != nil {
			t.Fatal(err)
		}
	}
	if len(c.entries) != iconCacheMax {
		t.Errorf("cache holds %d entries, cap is %d", len(c.entries), iconCacheMax)
	}
	// most recent load is at the front
	wantKey := fmt.Sprintf("%s#2x2", filepath.Join(dir, fmt.Sprintf("i%d.raw", iconCacheMax+2)))
	if c.entries[0].key != wantKey {
		t.Errorf("front = %q, want %q", c.entries[0].key, wantKey)
	}
}

func TestIconCacheRemoteFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(make([]byte, 2*2*2))
	}))
	defer srv.Close()

	c := NewIconCache(testClient(), t.TempDir())
	if _, err := c.Get(srv.URL+"/icon.raw", 2, 2); err != nil {
		t.Fatal(err)
	}
	// second size variant re-reads the downloaded file, not the network
	if _, err := c.Get(srv.URL+"/icon.raw", 1, 1); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestIconCacheRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewIconCache(testClient(), t.TempDir())
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	url := srv.URL + "/icon.raw"
	if _, err := c.Get(url, 2, 2); err == nil {
		t.Fatal("429 should fail the load")
	}
	// inside the Retry-After window the fetch is deferred
	srv.Close()
	if _, err := c.Get(url, 2, 2); err == nil {
		t.Fatal("deferred fetch should fail without touching the network")
	}
	if until, ok := c.retryAt[url]; !ok || !until.After(now) {
		t.Errorf("retryAt = %v,%v", until, ok)
	}
}
