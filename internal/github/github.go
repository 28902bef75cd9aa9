// Package github checks repositories and commits through the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/upstream"
)

const serviceName = "github"

type Config struct {
	URL          string
	Token        string
	Organization string
	HTTPClient   *http.Client
}

type Client struct {
	api *upstream.Client
	org string
}

func NewClient(cfg Config) *Client {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", "2022-11-28")
	return &Client{
		api: &upstream.Client{
			Service: serviceName,
			BaseURL: cfg.URL,
			HTTP:    cfg.HTTPClient,
			Auth:    upstream.TokenAuth(cfg.Token),
			Header:  header,
		},
		org: cfg.Organization,
	}
}

// listPageSize caps list answers so that they fit in one chat message.
const listPageSize = "30"

type repository struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	HTMLURL         string `json:"html_url"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
	OpenIssuesCount int    `json:"open_issues_count"`
}

func (r repository) convert() deploytypes.Repository {
	return deploytypes.Repository{
		ID:          strconv.FormatInt(r.ID, 10),
		Name:        r.Name,
		FullName:    r.FullName,
		URL:         r.HTMLURL,
		Description: r.Description,
		Private:     r.Private,
		OpenIssues:  r.OpenIssuesCount,
	}
}

type commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (c commit) convert() deploytypes.Commit {
	return deploytypes.Commit{
		SHA:     c.SHA,
		Message: c.Commit.Message,
		Author:  c.Commit.Author.Name,
		Email:   c.Commit.Author.Email,
		Date:    c.Commit.Author.Date,
		URL:     c.HTMLURL,
	}
}

// CheckRepository returns the repository of the configured organization, or
// nil when GitHub does not know it.
func (c *Client) CheckRepository(ctx context.Context, name string) (*deploytypes.Repository, error) {
	var repo repository
	path := fmt.Sprintf("repos/%s/%s", url.PathEscape(c.org), url.PathEscape(name))
	found, err := c.api.Get(ctx, "check repository", path, nil, &repo)
	if err != nil || !found || repo.ID == 0 {
		return nil, err
	}
	r := repo.convert()
	return &r, nil
}

// CheckCommit looks sha up in repo. GitHub resolves abbreviated ids, so a
// seven character prefix is enough.
func (c *Client) CheckCommit(ctx context.Context, repo, sha string) (*deploytypes.Commit, error) {
	var cm commit
	path := fmt.Sprintf("repos/%s/%s/commits/%s", url.PathEscape(c.org), url.PathEscape(repo), url.PathEscape(sha))
	found, err := c.api.Get(ctx, "check commit", path, nil, &cm)
	if err != nil || !found || cm.SHA == "" {
		return nil, err
	}
	converted := cm.convert()
	return &converted, nil
}

// ListRepositories returns the most recently pushed repositories of the
// organization.
func (c *Client) ListRepositories(ctx context.Context) ([]deploytypes.Repository, error) {
	var repos []repository
	path := fmt.Sprintf("orgs/%s/repos", url.PathEscape(c.org))
	query := url.Values{"sort": []string{"pushed"}, "per_page": []string{listPageSize}}
	resp, err := c.api.Do(ctx, "list repositories", http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, "list repositories")
	}
	if err := resp.Decode(serviceName, "list repositories", &repos); err != nil {
		return nil, err
	}
	out := make([]deploytypes.Repository, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.convert())
	}
	return out, nil
}

// ListCommits returns the latest commits on the default branch of repo.
func (c *Client) ListCommits(ctx context.Context, repo string) ([]deploytypes.Commit, error) {
	var commits []commit
	path := fmt.Sprintf("repos/%s/%s/commits", url.PathEscape(c.org), url.PathEscape(repo))
	query := url.Values{"per_page": []string{listPageSize}}
	resp, err := c.api.Do(ctx, "list commits", http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, "list commits")
	}
	if err := resp.Decode(serviceName, "list commits", &commits); err != nil {
		return nil, err
	}
	out := make([]deploytypes.Commit, 0, len(commits))
	for _, cm := range commits {
		out = append(out, cm.convert())
	}
	return out, nil
}
