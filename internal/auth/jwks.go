package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/telemetry"
)

const jwksTTL = time.Hour

// providerMeta is the subset of OIDC discovery this service needs:
// jwks_uri (to fetch signing keys manually) and userinfo_endpoint (to
// validate opaque tokens). go-oidc's discovery client resolves both; the
// JWKS document itself is then fetched and parsed by hand because
// go-oidc's Verifier does not expose the tolerant multi-audience check
// production validation requires.
type providerMeta struct {
	jwksURI     string
	userInfoURL string
}

type jwksEntry struct {
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
}

// JWKSCache fetches and caches each issuer's signing keys, keyed by kid.
type JWKSCache struct {
	httpClient *http.Client

	mu       sync.Mutex
	meta     map[string]providerMeta
	entries  map[string]jwksEntry
}

// NewJWKSCache creates an empty cache.
func NewJWKSCache() *JWKSCache {
	return &JWKSCache{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		meta:       make(map[string]providerMeta),
		entries:    make(map[string]jwksEntry),
	}
}

func (c *JWKSCache) discover(ctx context.Context, issuer string) (providerMeta, error) {
	c.mu.Lock()
	if m, ok := c.meta[issuer]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return providerMeta{}, fmt.Errorf("discovering issuer %s: %w", issuer, err)
	}

	var claims struct {
		JWKSURI     string `json:"jwks_uri"`
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return providerMeta{}, fmt.Errorf("reading discovery document for %s: %w", issuer, err)
	}

	m := providerMeta{jwksURI: claims.JWKSURI, userInfoURL: claims.UserInfoURL}
	c.mu.Lock()
	c.meta[issuer] = m
	c.mu.Unlock()
	return m, nil
}

// Key returns the signing key for (issuer, kid), fetching and caching the
// issuer's JWKS document on a miss or after the TTL has elapsed.
func (c *JWKSCache) Key(ctx context.Context, issuer, kid string) (*jose.JSONWebKey, error) {
	if key, ok := c.cachedKey(issuer, kid); ok {
		return key, nil
	}

	meta, err := c.discover(ctx, issuer)
	if err != nil {
		return nil, err
	}

	telemetry.JWKSFetchesTotal.WithLabelValues(issuer).Inc()
	set, err := c.fetch(ctx, meta.jwksURI)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[issuer] = jwksEntry{keys: set, fetchedAt: time.Now()}
	c.mu.Unlock()

	for _, k := range set.Keys {
		if k.KeyID == kid {
			key := k
			return &key, nil
		}
	}
	return nil, domain.ErrKeyNotFound
}

func (c *JWKSCache) cachedKey(issuer, kid string) (*jose.JSONWebKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[issuer]
	if !ok || time.Since(entry.fetchedAt) > jwksTTL {
		return nil, false
	}
	for _, k := range entry.keys.Keys {
		if k.KeyID == kid {
			key := k
			return &key, true
		}
	}
	return nil, false
}

func (c *JWKSCache) fetch(ctx context.Context, jwksURI string) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("building JWKS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("fetching JWKS from %s: %w", jwksURI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("reading JWKS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return jose.JSONWebKeySet{}, fmt.Errorf("JWKS endpoint %s returned status %d", jwksURI, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decoding JWKS document: %w", err)
	}
	return set, nil
}

// UserInfoURL returns the cached userinfo endpoint for issuer, discovering
// it first if necessary. Used to validate opaque (non-JWT) tokens.
func (c *JWKSCache) UserInfoURL(ctx context.Context, issuer string) (string, error) {
	meta, err := c.discover(ctx, issuer)
	if err != nil {
		return "", err
	}
	return meta.userInfoURL, nil
}
