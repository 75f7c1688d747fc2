package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// scopeCache caches Globus Auth scope-string -> scope-id lookups (12h TTL,
// matching the Python original's cachetools.TTLCache) and the scope ids this
// client has already composed into an owned scope, keyed by the sorted set
// of dependent scope ids (the frozenset key in the Python original).
type scopeCache struct {
	ttl time.Duration

	mu        sync.Mutex
	ids       map[string]scopeIDEntry // scope string -> scope id
	ownScopes map[string]string       // sorted dependent-id-set key -> owned scope string
}

type scopeIDEntry struct {
	id        string
	expiresAt time.Time
}

func newScopeCache(ttl time.Duration) *scopeCache {
	return &scopeCache{
		ttl:       ttl,
		ids:       make(map[string]scopeIDEntry),
		ownScopes: make(map[string]string),
	}
}

// scopeIDLookup is one entry of the scopes response decoded by
// lookupScopeIDs.
type scopeIDLookup struct {
	ScopeString string `json:"scope_string"`
	ID          string `json:"id"`
}

// lookupScopeIDs resolves scope strings to Globus Auth scope ids, batching
// every cache miss into a single GET request.
func (c *Client) lookupScopeIDs(ctx context.Context, scopeStrings []string) (map[string]string, error) {
	out := make(map[string]string, len(scopeStrings))
	var misses []string

	c.scopes.mu.Lock()
	now := time.Now()
	for _, s := range scopeStrings {
		entry, ok := c.scopes.ids[s]
		if ok && now.Before(entry.expiresAt) {
			out[s] = entry.id
			continue
		}
		misses = append(misses, s)
	}
	c.scopes.mu.Unlock()

	if len(misses) == 0 {
		return out, nil
	}

	endpoint := c.baseURL + "/v2/api/scopes?scope_strings=" + url.QueryEscape(strings.Join(misses, ","))
	req, err := newGET(ctx, endpoint, c.clientID, c.clientSecret)
	if err != nil {
		return nil, err
	}

	var body struct {
		Scopes []scopeIDLookup `json:"scopes"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return nil, fmt.Errorf("lookup scope ids: %w", err)
	}

	c.scopes.mu.Lock()
	expiresAt := time.Now().Add(c.scopes.ttl)
	for _, s := range body.Scopes {
		c.scopes.ids[s.ScopeString] = scopeIDEntry{id: s.ID, expiresAt: expiresAt}
		out[s.ScopeString] = s.ID
	}
	c.scopes.mu.Unlock()

	return out, nil
}

// GetScopeForDependentSet resolves the composite scope registered to wrap
// the given dependent scope strings, creating it via the Globus Auth
// scopes API if this client has not already composed one. An empty
// scopeName/scopeSuffix is derived deterministically from
// dependentScopeStrings, so repeated calls with the same set reuse the same
// scope both in this process's cache and, via the suffix, on a cold start.
func (c *Client) GetScopeForDependentSet(ctx context.Context, scopeName, scopeSuffix string, dependentScopeStrings []string) (string, error) {
	ids, err := c.lookupScopeIDs(ctx, dependentScopeStrings)
	if err != nil {
		return "", err
	}

	idList := make([]string, 0, len(ids))
	for _, id := range ids {
		idList = append(idList, id)
	}
	sort.Strings(idList)
	key := strings.Join(idList, ",")

	c.scopes.mu.Lock()
	if scope, ok := c.scopes.ownScopes[key]; ok {
		c.scopes.mu.Unlock()
		return scope, nil
	}
	c.scopes.mu.Unlock()

	if scopeName == "" {
		scopeName = genScopeName(dependentScopeStrings)
	}
	if scopeSuffix == "" {
		scopeSuffix = genScopeSuffix(dependentScopeStrings)
	}

	scope, err := c.createScope(ctx, scopeName, scopeSuffix, idList)
	if err != nil {
		return "", err
	}

	c.scopes.mu.Lock()
	c.scopes.ownScopes[key] = scope
	c.scopes.mu.Unlock()

	return scope, nil
}

var scopeSuffixReplacer = strings.NewReplacer("-", "_", "/", "", ":", "", ".", "")

// genScopeName derives a human-readable composite-scope name from its
// dependent scope strings, truncated to stay within the Globus Auth scope
// name length limit.
func genScopeName(dependentScopeStrings []string) string {
	joined := strings.Join(dependentScopeStrings, ",")
	if len(joined) > 180 {
		joined = joined[:180]
	}
	return "Trigger action-dispatcher using scopes " + joined
}

// genScopeSuffix derives a unique, URL-safe scope suffix from its dependent
// scope strings.
func genScopeSuffix(dependentScopeStrings []string) string {
	joined := scopeSuffixReplacer.Replace(strings.Join(dependentScopeStrings, "_"))
	if len(joined) > 50 {
		joined = joined[:50]
	}
	return "triggers_" + joined
}

func (c *Client) createScope(ctx context.Context, scopeName, scopeSuffix string, dependentScopeIDs []string) (string, error) {
	payload := map[string]any{
		"scope": map[string]any{
			"name":                scopeName,
			"description":         fmt.Sprintf("Composite scope for %s", scopeName),
			"scope_suffix":        scopeSuffix,
			"dependent_scopes":    dependentScopeIDs,
			"advertised":          false,
			"allow_refresh_token": true,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v2/api/clients/%s/scopes", c.baseURL, c.clientID)
	req, err := newPOSTJSON(ctx, endpoint, c.clientID, c.clientSecret, body)
	if err != nil {
		return "", err
	}

	var result struct {
		Scopes []struct {
			ScopeString string `json:"scope_string"`
		} `json:"scope"`
	}
	if err := c.doJSON(req, &result); err != nil {
		return "", fmt.Errorf("create scope: %w", err)
	}
	if len(result.Scopes) == 0 {
		return "", fmt.Errorf("create scope: empty response")
	}
	return result.Scopes[0].ScopeString, nil
}
