// Package terrain fetches terrain-RGB raster tiles over HTTP.
package terrain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/core/ports"
	"github.com/gravelatlas/atlas/internal/pkg/metrics"
)

const maxTileBytes = 4 << 20

// StatusError is returned for non-200 tile responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile %s: HTTP %d", e.URL, e.Code)
}

// Options configures a Client.
type Options struct {
	URLTemplate     string // {z}, {x} and {y} are substituted
	Timeout         time.Duration
	Retries         int
	Cache           ports.CacheService // optional byte cache shared between instances
	CacheTTLSeconds int
	MemoryTiles     int // decoded tiles kept in process
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client implements ports.TileSource.
type Client struct {
	http     *http.Client
	template string
	retries  int
	cache    ports.CacheService
	cacheTTL int
	mem      *lru.Cache[domain.TileAddress, image.Image] // nil when disabled
	logger   *slog.Logger
}

// New creates a tile client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:     hc,
		template: opts.URLTemplate,
		retries:  opts.Retries,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTLSeconds,
		logger:   logger,
	}
	if opts.MemoryTiles > 0 {
		// lru.New only fails for a non-positive size.
		c.mem, _ = lru.New[domain.TileAddress, image.Image](opts.MemoryTiles)
	}
	return c
}

// TileURL fills the URL template for addr.
func (c *Client) TileURL(addr domain.TileAddress) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(addr.Z),
		"{x}", strconv.Itoa(addr.X),
		"{y}", strconv.Itoa(addr.Y),
	).Replace(c.template)
}

func cacheKey(addr domain.TileAddress) string {
	return fmt.Sprintf("terrain:%d:%d:%d", addr.Z, addr.X, addr.Y)
}

// Tile returns the decoded tile at addr, consulting the in-process and shared
// caches before the network.
func (c *Client) Tile(ctx context.Context, addr domain.TileAddress) (image.Image, error) {
	if img, ok := c.memGet(addr); ok {
		metrics.CacheHits.WithLabelValues("terrain_memory").Inc()
		return img, nil
	}

	if img, ok := c.fromCache(ctx, addr); ok {
		c.memPut(addr, img)
		return img, nil
	}

	data, err := c.fetch(ctx, addr)
	if err != nil {
		metrics.TileFetchErrors.Inc()
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", c.TileURL(addr), err)
	}

	c.memPut(addr, img)
	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey(addr), data, c.cacheTTL); err != nil {
			c.logger.Debug("tile cache set", "key", cacheKey(addr), "error", err)
		}
	}
	return img, nil
}

func (c *Client) memGet(addr domain.TileAddress) (image.Image, bool) {
	if c.mem == nil {
		return nil, false
	}
	return c.mem.Get(addr)
}

func (c *Client) memPut(addr domain.TileAddress, img image.Image) {
	if c.mem != nil {
		c.mem.Add(addr, img)
	}
}

func (c *Client) fromCache(ctx context.Context, addr domain.TileAddress) (image.Image, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, cacheKey(addr))
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			c.logger.Debug("tile cache get", "key", cacheKey(addr), "error", err)
		}
		metrics.CacheMisses.WithLabelValues("terrain_tile").Inc()
		return nil, false
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		// Corrupt entry: drop it and refetch.
		_ = c.cache.Delete(ctx, cacheKey(addr))
		metrics.CacheMisses.WithLabelValues("terrain_tile").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("terrain_tile").Inc()
	return img, true
}

func (c *Client) fetch(ctx context.Context, addr domain.TileAddress) ([]byte, error) {
	url := c.TileURL(addr)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	var retries uint64
	if c.retries > 0 {
		retries = uint64(c.retries)
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			serr := &StatusError{URL: url, Code: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(serr)
			}
			return serr
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}
