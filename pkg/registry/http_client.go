package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/terrazul/tpm/pkg/tzerr"
	"github.com/terrazul/tpm/pkg/verbose"
)

// HTTPClient is the production Client implementation over net/http. No
// third-party HTTP client library appears anywhere in the reference
// corpus, so this talks directly to net/http like every networked
// component in that corpus does.
type HTTPClient struct {
	BaseURL string
	Token   string

	httpClient *http.Client
	sleep      func(time.Duration)
}

// NewHTTPClient builds a client against baseURL, optionally authenticating
// every request with a bearer token (format "tz_<token>").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      time.Sleep,
	}
}

const retryDelay = 200 * time.Millisecond

// checkScheme enforces HTTPS-only transport, with a loopback exception
// for test fixtures.
func checkScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return tzerr.New(tzerr.InvalidArgument, "invalid URL %q: %v", rawURL, err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if isLoopbackHost(u.Hostname()) {
		return nil
	}
	return tzerr.SecurityViolationErr("only https:// transport is allowed (loopback excepted)", rawURL)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	if err := checkScheme(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, tzerr.Wrap(tzerr.NetworkError, err, "building request for %s", rawURL)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doWithRetry issues req and retries exactly once on connection reset or
// a 5xx response, after retryDelay. GET is idempotent, which is all this
// client ever issues.
func (c *HTTPClient) doWithRetry(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil && !errors.Is(err, syscall.ECONNRESET) {
		return nil, err
	}
	if err == nil && resp.StatusCode < 500 {
		return resp, nil
	}

	verbose.Debugf("registry: retrying %s %s after transient failure", req.Method, req.URL)
	if resp != nil {
		resp.Body.Close()
	}
	c.sleep(retryDelay)

	retryReq := req.Clone(req.Context())
	return c.httpClient.Do(retryReq)
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return tzerr.Wrap(tzerr.NetworkError, err, "requesting %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return tzerr.AuthRequiredErr(rawURL)
	}
	if resp.StatusCode == http.StatusNotFound {
		return tzerr.New(tzerr.PackageNotFound, "not found: %s", rawURL)
	}
	if resp.StatusCode >= 300 {
		return tzerr.New(tzerr.NetworkError, "unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tzerr.Wrap(tzerr.NetworkError, err, "reading response from %s", rawURL)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return tzerr.Wrap(tzerr.NetworkError, err, "decoding response from %s", rawURL)
	}
	return nil
}

func (c *HTTPClient) packageURL(name string) (string, error) {
	owner, pkg, ok := splitScope(name)
	if !ok {
		return "", tzerr.InvalidArgumentErr("malformed package name: %s", name)
	}
	return fmt.Sprintf("%s/packages/v1/%s/%s", c.BaseURL, owner, pkg), nil
}

func splitScope(name string) (owner, pkg string, ok bool) {
	if !strings.HasPrefix(name, "@") {
		return "", "", false
	}
	rest := name[1:]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

type packageMetaWire struct {
	Name        string                 `json:"name"`
	Owner       string                 `json:"owner"`
	Description string                 `json:"description"`
	Latest      string                 `json:"latest"`
	Versions    map[string]VersionMeta `json:"versions"`
}

// GetPackage implements Client.
func (c *HTTPClient) GetPackage(ctx context.Context, name string) (*PackageMeta, error) {
	u, err := c.packageURL(name)
	if err != nil {
		return nil, err
	}
	var wire packageMetaWire
	if err := c.getJSON(ctx, u, &wire); err != nil {
		return nil, err
	}
	return &PackageMeta{
		Name:        wire.Name,
		Owner:       wire.Owner,
		Description: wire.Description,
		Latest:      wire.Latest,
		Versions:    wire.Versions,
	}, nil
}

// GetVersions implements Client.
func (c *HTTPClient) GetVersions(ctx context.Context, name string) (map[string]VersionMeta, error) {
	base, err := c.packageURL(name)
	if err != nil {
		return nil, err
	}
	var wire struct {
		Versions map[string]VersionMeta `json:"versions"`
	}
	if err := c.getJSON(ctx, base+"/versions", &wire); err != nil {
		return nil, err
	}
	return wire.Versions, nil
}

// GetTarballInfo implements Client.
func (c *HTTPClient) GetTarballInfo(ctx context.Context, name, version string) (*TarballInfo, error) {
	base, err := c.packageURL(name)
	if err != nil {
		return nil, err
	}
	var info TarballInfo
	if err := c.getJSON(ctx, fmt.Sprintf("%s/tarball/%s", base, version), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DownloadTarball implements Client.
func (c *HTTPClient) DownloadTarball(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(req)
	if err != nil {
		return nil, tzerr.Wrap(tzerr.NetworkError, err, "downloading %s", rawURL)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, tzerr.AuthRequiredErr(rawURL)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, tzerr.New(tzerr.NetworkError, "unexpected status %d downloading %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}
