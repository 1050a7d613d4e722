// Package registry implements the public package-registry client: scope
// and package classification, rate limiting, per-key single-flight, and
// TTL caching.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/network"
	"github.com/xkilldash9x/scalpeldep/internal/observability"
)

var json_ = jsoniter.ConfigCompatibleWithStandardLibrary

// Client classifies package and scope names against a public registry.
// Safe for concurrent use.
type Client struct {
	http    *network.Client
	baseURL string
	cache   *Cache
	limiter *rate.Limiter
	sf      singleflight.Group
	logger  *zap.Logger
}

// NewClient builds a registry Client from the registry and network config
// domains. It forces HTTP/1.1 for the registry connection, mirroring the
// original implementation's rationale: HTTP/2 stream-limit behavior under
// heavy concurrent single-flight lookups is worse than plain HTTP/1.1
// connection pooling here.
func NewClient(regCfg config.RegistryConfig, netCfg config.NetworkConfig) *Client {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = netCfg.Timeout
	clientCfg.ForceHTTP2 = false
	clientCfg.FollowRedirects = true
	clientCfg.IgnoreTLSErrors = netCfg.IgnoreTLSErrors
	if netCfg.Proxy.Enabled && netCfg.Proxy.Address != "" {
		if u, err := url.Parse(netCfg.Proxy.Address); err == nil {
			clientCfg.ProxyURL = u
		}
	}

	baseURL := regCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://registry.npmjs.org"
	}

	return &Client{
		http:    network.NewClient(clientCfg),
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   NewCache(regCfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Limit(regCfg.RateLimit), 1),
		logger:  observability.GetLogger().Named("registry"),
	}
}

// LookupPackage classifies name, applying the scoped two-step protocol
// (§4.1) when name has a scope. Concurrent callers for the same name share
// one in-flight request (P5).
func (c *Client) LookupPackage(ctx context.Context, name string) (model.PackageClass, error) {
	if class, ok := c.cache.Get(name); ok {
		return class, nil
	}

	v, err, _ := c.sf.Do(name, func() (interface{}, error) {
		class, err := c.classify(ctx, name)
		if err == nil {
			c.cache.Set(name, class)
		}
		return class, err
	})
	if err != nil {
		return model.ClassUnknown, err
	}
	return v.(model.PackageClass), nil
}

func (c *Client) classify(ctx context.Context, name string) (model.PackageClass, error) {
	if !strings.HasPrefix(name, "@") {
		return c.checkRegularPackage(ctx, name)
	}
	scope, _, ok := strings.Cut(name, "/")
	if !ok {
		return c.checkRegularPackage(ctx, name)
	}
	return c.checkScopedPackage(ctx, scope, name)
}

func (c *Client) checkRegularPackage(ctx context.Context, name string) (model.PackageClass, error) {
	status, err := c.get(ctx, "/"+url.PathEscape(name))
	if err != nil {
		return model.ClassUnknown, err
	}
	switch status {
	case http.StatusOK:
		return model.ClassExists, nil
	case http.StatusNotFound:
		return model.ClassNotFound, nil
	default:
		return model.ClassUnknown, fmt.Errorf("registry returned unexpected status %d for %s", status, name)
	}
}

func (c *Client) checkScopedPackage(ctx context.Context, scope, fullName string) (model.PackageClass, error) {
	encoded := strings.ReplaceAll(url.PathEscape(fullName), "%2F", "/")
	status, err := c.get(ctx, "/"+encoded)
	if err != nil {
		return model.ClassUnknown, err
	}
	if status == http.StatusOK {
		return model.ClassExists, nil
	}
	if status != http.StatusNotFound {
		return model.ClassUnknown, fmt.Errorf("registry returned unexpected status %d for %s", status, fullName)
	}

	claimed, err := c.scopeClaimed(ctx, scope)
	if err != nil {
		return model.ClassUnknown, err
	}
	if !claimed {
		return model.ClassScopeNotClaimed, nil
	}
	// Scope is claimed but this exact package is missing.
	return model.ClassNotFound, nil
}

// scopeClaimed implements the three-check scope-ownership protocol
// (§4.1): user account, org, and prefix-verified search, short-circuiting
// on the first positive. Only when all three fail is the scope unclaimed.
func (c *Client) scopeClaimed(ctx context.Context, scope string) (bool, error) {
	scopeName := strings.TrimPrefix(scope, "@")

	if ok, err := c.userExists(ctx, scopeName); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	if ok, err := c.orgExists(ctx, scopeName); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	if ok, err := c.searchScopeHasPrefix(ctx, scopeName); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	return false, nil
}

func (c *Client) userExists(ctx context.Context, scope string) (bool, error) {
	body, status, err := c.getBody(ctx, "/-/user/org.couchdb.user:"+url.PathEscape(scope))
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}
	var payload struct {
		OK   bool   `json:"ok"`
		Name string `json:"name"`
		ID   string `json:"_id"`
	}
	if err := json_.Unmarshal(body, &payload); err != nil {
		return false, nil
	}
	return payload.OK || payload.Name != "" || payload.ID != "", nil
}

func (c *Client) orgExists(ctx context.Context, scope string) (bool, error) {
	body, status, err := c.getBody(ctx, "/-/org/"+url.PathEscape(scope)+"/package")
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}
	// An org with zero published packages still returns a success body (an
	// empty object), not a not-found body — the absence of an "error" field
	// means the org exists.
	var payload map[string]interface{}
	if err := json_.Unmarshal(body, &payload); err != nil {
		return true, nil
	}
	_, hasError := payload["error"]
	return !hasError, nil
}

func (c *Client) searchScopeHasPrefix(ctx context.Context, scope string) (bool, error) {
	body, status, err := c.getBody(ctx, "/-/v1/search?text=%40"+url.QueryEscape(scope)+"&size=5")
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}
	var payload struct {
		Objects []struct {
			Package struct {
				Name string `json:"name"`
			} `json:"package"`
		} `json:"objects"`
	}
	if err := json_.Unmarshal(body, &payload); err != nil {
		return false, nil
	}
	prefix := "@" + scope + "/"
	for _, o := range payload.Objects {
		// Full-text search can match unrelated packages; only a hit whose
		// name actually begins with the scope prefix counts as ownership.
		if strings.HasPrefix(o.Package.Name, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// get performs a GET and returns only the status code, discarding the
// body; used for the plain existence checks.
func (c *Client) get(ctx context.Context, path string) (int, error) {
	_, status, err := c.getBody(ctx, path)
	return status, err
}

func (c *Client) getBody(ctx context.Context, path string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, nil
}

// ScopeTTLDefault is used when a caller constructs a RegistryConfig without
// specifying a cache TTL.
const ScopeTTLDefault = time.Hour
