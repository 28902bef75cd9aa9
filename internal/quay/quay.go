// Package quay checks repositories and tags on a Quay registry.
package quay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/upstream"
)

const serviceName = "quay"

type Config struct {
	URL   string
	Token string
	// Namespace is used for repository names given without one.
	Namespace  string
	HTTPClient *http.Client
}

type Client struct {
	api       *upstream.Client
	namespace string
}

// NewClient builds a client. The HTTP client should come from
// upstream.NewHTTPClient so that redirects keep the bearer token.
func NewClient(cfg Config) *Client {
	return &Client{
		api: &upstream.Client{
			Service: serviceName,
			BaseURL: cfg.URL,
			HTTP:    cfg.HTTPClient,
			Auth:    upstream.BearerAuth(cfg.Token),
		},
		namespace: cfg.Namespace,
	}
}

type repositoryResource struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

type repositoryList struct {
	Repositories []repositoryResource `json:"repositories"`
}

type tagsResource struct {
	Tags []struct {
		Name           string `json:"name"`
		ManifestDigest string `json:"manifest_digest"`
		LastModified   string `json:"last_modified"`
	} `json:"tags"`
}

func (c *Client) split(name string) (namespace, repo string) {
	if ns, r, ok := strings.Cut(name, "/"); ok {
		return ns, r
	}
	return c.namespace, name
}

// CheckRepository returns the repository when the registry knows it under
// exactly that name, or nil.
func (c *Client) CheckRepository(ctx context.Context, name string) (*deploytypes.ImageRepository, error) {
	ns, repo := c.split(name)
	var res repositoryResource
	path := fmt.Sprintf("repository/%s/%s", url.PathEscape(ns), url.PathEscape(repo))
	found, err := c.api.Get(ctx, "check repository", path, nil, &res)
	if err != nil || !found || res.Name != repo {
		return nil, err
	}
	if res.Namespace == "" {
		res.Namespace = ns
	}
	return &deploytypes.ImageRepository{Namespace: res.Namespace, Name: res.Name, Description: res.Description, Public: res.IsPublic}, nil
}

// ListRepositories returns the repositories of the configured namespace.
func (c *Client) ListRepositories(ctx context.Context) ([]deploytypes.ImageRepository, error) {
	var res repositoryList
	resp, err := c.api.Do(ctx, "list repositories", http.MethodGet, "repository", url.Values{"namespace": []string{c.namespace}}, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, "list repositories")
	}
	if err := resp.Decode(serviceName, "list repositories", &res); err != nil {
		return nil, err
	}
	out := make([]deploytypes.ImageRepository, 0, len(res.Repositories))
	for _, r := range res.Repositories {
		out = append(out, deploytypes.ImageRepository{Namespace: r.Namespace, Name: r.Name, Description: r.Description, Public: r.IsPublic})
	}
	return out, nil
}

// CheckImage returns the active tags of repo named exactly tag. An empty
// result means the image does not exist.
func (c *Client) CheckImage(ctx context.Context, repo, tag string) ([]deploytypes.ImageTag, error) {
	ns, name := c.split(repo)
	var res tagsResource
	path := fmt.Sprintf("repository/%s/%s/tag/", url.PathEscape(ns), url.PathEscape(name))
	query := url.Values{
		"specificTag":    []string{tag},
		"onlyActiveTags": []string{"true"},
	}
	found, err := c.api.Get(ctx, "check image", path, query, &res)
	if err != nil || !found {
		return nil, err
	}

	var tags []deploytypes.ImageTag
	for _, t := range res.Tags {
		if t.Name != tag {
			continue
		}
		tags = append(tags, deploytypes.ImageTag{Name: t.Name, ManifestDigest: t.ManifestDigest, LastModified: t.LastModified})
	}
	return tags, nil
}
