// Package github is a small client for an organization's public repositories.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const DefaultBaseURL = "https://api.github.com"

// Getter fetches url and decodes its JSON body into out.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// HTTPGetter is the default Getter.
type HTTPGetter struct {
	Client *http.Client
}

// NewHTTPGetter returns a Getter whose requests time out after timeout.
func NewHTTPGetter(timeout time.Duration) *HTTPGetter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGetter{Client: &http.Client{Timeout: timeout}}
}

func (g *HTTPGetter) GetJSON(ctx context.Context, url string, out any) error {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

func WithGetter(g Getter) Option {
	return func(c *Client) { c.getter = g }
}

// Client reads one organization. The org and repos payloads are fetched at
// most once per successful call; failed fetches are retried on the next call.
type Client struct {
	org     string
	baseURL string
	getter  Getter

	mu   sync.Mutex
	orgP map[string]any

	reposMu sync.Mutex
	repos   []any
}

func NewClient(org string, opts ...Option) *Client {
	c := &Client{org: org, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.getter == nil {
		c.getter = NewHTTPGetter(0)
	}
	return c
}

// OrgURL is the API endpoint of the organization.
func (c *Client) OrgURL() string {
	return fmt.Sprintf("%s/orgs/%s", c.baseURL, c.org)
}

// Org returns the organization payload.
func (c *Client) Org(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orgP != nil {
		return c.orgP, nil
	}
	var payload map[string]any
	if err := c.getter.GetJSON(ctx, c.OrgURL(), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	c.orgP = payload
	return payload, nil
}

// PublicReposURL is the repos_url advertised by the organization.
func (c *Client) PublicReposURL(ctx context.Context) (string, error) {
	org, err := c.Org(ctx)
	if err != nil {
		return "", err
	}
	v, err := AccessNestedMap(org, "repos_url")
	if err != nil {
		return "", err
	}
	url, ok := v.(string)
	if !ok || url == "" {
		return "", fmt.Errorf("repos_url is not a string: %v", v)
	}
	return url, nil
}

// ReposPayload returns the raw list of repositories.
func (c *Client) ReposPayload(ctx context.Context) ([]any, error) {
	c.reposMu.Lock()
	defer c.reposMu.Unlock()
	if c.repos != nil {
		return c.repos, nil
	}
	url, err := c.PublicReposURL(ctx)
	if err != nil {
		return nil, err
	}
	var payload []any
	if err := c.getter.GetJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []any{}
	}
	c.repos = payload
	return payload, nil
}

// PublicRepos lists repository names in payload order. A non-empty license
// keeps only repositories under that license key.
func (c *Client) PublicRepos(ctx context.Context, license string) ([]string, error) {
	payload, err := c.ReposPayload(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload))
	for _, item := range payload {
		repo, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if license != "" && !HasLicense(repo, license) {
			continue
		}
		if name, ok := repo["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// HasLicense reports whether repo carries license key. It panics on an empty key.
func HasLicense(repo map[string]any, key string) bool {
	if key == "" {
		panic("license_key cannot be empty")
	}
	v, err := AccessNestedMap(repo, "license", "key")
	if err != nil {
		return false
	}
	s, ok := v.(string)
	return ok && s == key
}

// KeyError names the path element that could not be resolved.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string { return fmt.Sprintf("KeyError: %q", e.Key) }

// ErrNotMap is wrapped by KeyError lookups that hit a non-map value.
var ErrNotMap = errors.New("value is not a map")

// AccessNestedMap walks m along path.
func AccessNestedMap(m map[string]any, path ...string) (any, error) {
	var cur any = m
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %w", &KeyError{Key: key}, ErrNotMap)
		}
		cur, ok = node[key]
		if !ok {
			return nil, &KeyError{Key: key}
		}
	}
	return cur, nil
}
