package registry

import (
	"context"
	"io"
	"sync"
)

// CachingClient decorates a Client with an in-memory cache of
// GetPackage/GetVersions responses, scoped to a single install or
// update run. The resolver's candidate expansion frequently re-requests
// the same name as it walks the dependency graph; this avoids repeat
// round trips without introducing any on-disk or cross-run caching
// semantics.
type CachingClient struct {
	inner Client

	mu       sync.Mutex
	packages map[string]*PackageMeta
	versions map[string]map[string]VersionMeta
}

// NewCachingClient wraps inner with a fresh, empty cache.
func NewCachingClient(inner Client) *CachingClient {
	return &CachingClient{
		inner:    inner,
		packages: make(map[string]*PackageMeta),
		versions: make(map[string]map[string]VersionMeta),
	}
}

// GetPackage implements Client, caching by name.
func (c *CachingClient) GetPackage(ctx context.Context, name string) (*PackageMeta, error) {
	c.mu.Lock()
	if cached, ok := c.packages[name]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	meta, err := c.inner.GetPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.packages[name] = meta
	c.mu.Unlock()
	return meta, nil
}

// GetVersions implements Client, caching by name.
func (c *CachingClient) GetVersions(ctx context.Context, name string) (map[string]VersionMeta, error) {
	c.mu.Lock()
	if cached, ok := c.versions[name]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	versions, err := c.inner.GetVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.versions[name] = versions
	c.mu.Unlock()
	return versions, nil
}

// GetTarballInfo implements Client by delegating uncached: tarball URLs
// may carry short-lived CDN redirects that should not be cached.
func (c *CachingClient) GetTarballInfo(ctx context.Context, name, version string) (*TarballInfo, error) {
	return c.inner.GetTarballInfo(ctx, name, version)
}

// DownloadTarball implements Client by delegating uncached.
func (c *CachingClient) DownloadTarball(ctx context.Context, url string) (io.ReadCloser, error) {
	return c.inner.DownloadTarball(ctx, url)
}
