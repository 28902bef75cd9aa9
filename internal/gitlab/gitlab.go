// Package gitlab checks repositories and commits on a GitLab instance.
package gitlab

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/upstream"
	goGitlab "gitlab.com/gitlab-org/api/client-go"
	"go.openly.dev/pointy"
)

const serviceName = "gitlab"

type Config struct {
	URL   string
	Token string
	// Group is the namespace repositories are looked up in.
	Group      string
	HTTPClient *http.Client
}

// Client wraps the go-gitlab client. Retries are disabled because a failed
// verification is reported to the actor rather than retried.
type Client struct {
	gl    *goGitlab.Client
	group string
}

func NewClient(cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(constants.DefaultHTTPTimeout, nil)
	}
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = constants.DefaultGitLabAPIURL
	}

	gl, err := goGitlab.NewClient(cfg.Token,
		goGitlab.WithHTTPClient(httpClient),
		goGitlab.WithBaseURL(baseURL),
		goGitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, err
	}
	gl.UserAgent = constants.AppName + "/" + constants.Version

	return &Client{gl: gl, group: cfg.Group}, nil
}

func (c *Client) projectPath(name string) string {
	if c.group == "" {
		return name
	}
	return c.group + "/" + name
}

// missing tells a negative answer apart from a transport failure.
func missing(resp *goGitlab.Response, err error) bool {
	if err == nil {
		return false
	}
	return resp != nil && resp.Response != nil
}

func (c *Client) CheckRepository(ctx context.Context, name string) (*deploytypes.Repository, error) {
	p, resp, err := c.gl.Projects.GetProject(c.projectPath(name), &goGitlab.GetProjectOptions{
		Statistics: pointy.Bool(false),
	}, goGitlab.WithContext(ctx))
	if missing(resp, err) {
		return nil, nil
	}
	if err != nil {
		return nil, &upstream.Error{Service: serviceName, Op: "check repository", Err: err}
	}
	if p == nil {
		return nil, nil
	}
	r := convertProject(p)
	return &r, nil
}

func convertProject(p *goGitlab.Project) deploytypes.Repository {
	return deploytypes.Repository{
		ID:          fmt.Sprint(p.ID),
		Name:        p.Name,
		FullName:    p.PathWithNamespace,
		URL:         p.WebURL,
		Description: p.Description,
		Private:     p.Visibility != goGitlab.PublicVisibility,
		OpenIssues:  int(p.OpenIssuesCount),
	}
}

func convertCommit(cm *goGitlab.Commit) deploytypes.Commit {
	out := deploytypes.Commit{
		SHA:     cm.ID,
		Message: cm.Message,
		Author:  cm.AuthorName,
		Email:   cm.AuthorEmail,
		URL:     cm.WebURL,
	}
	if cm.AuthoredDate != nil {
		out.Date = *cm.AuthoredDate
	}
	return out
}

// ListRepositories returns the active projects of the group, or the projects
// the token is a member of when no group is configured.
func (c *Client) ListRepositories(ctx context.Context) ([]deploytypes.Repository, error) {
	var (
		projects []*goGitlab.Project
		err      error
	)
	if c.group == "" {
		projects, _, err = c.gl.Projects.ListProjects(&goGitlab.ListProjectsOptions{
			Membership: pointy.Bool(true),
			Archived:   pointy.Bool(false),
		}, goGitlab.WithContext(ctx))
	} else {
		projects, _, err = c.gl.Groups.ListGroupProjects(c.group, &goGitlab.ListGroupProjectsOptions{
			Archived: pointy.Bool(false),
		}, goGitlab.WithContext(ctx))
	}
	if err != nil {
		return nil, &upstream.Error{Service: serviceName, Op: "list repositories", Err: err}
	}
	out := make([]deploytypes.Repository, 0, len(projects))
	for _, p := range projects {
		out = append(out, convertProject(p))
	}
	return out, nil
}

// ListCommits returns the latest commits on the default branch of repo.
func (c *Client) ListCommits(ctx context.Context, repo string) ([]deploytypes.Commit, error) {
	commits, _, err := c.gl.Commits.ListCommits(c.projectPath(repo), &goGitlab.ListCommitsOptions{}, goGitlab.WithContext(ctx))
	if err != nil {
		return nil, &upstream.Error{Service: serviceName, Op: "list commits", Err: err}
	}
	out := make([]deploytypes.Commit, 0, len(commits))
	for _, cm := range commits {
		out = append(out, convertCommit(cm))
	}
	return out, nil
}

func (c *Client) CheckCommit(ctx context.Context, repo, sha string) (*deploytypes.Commit, error) {
	cm, resp, err := c.gl.Commits.GetCommit(c.projectPath(repo), sha, &goGitlab.GetCommitOptions{
		Stats: pointy.Bool(false),
	}, goGitlab.WithContext(ctx))
	if missing(resp, err) {
		return nil, nil
	}
	if err != nil {
		return nil, &upstream.Error{Service: serviceName, Op: "check commit", Err: err}
	}
	if cm == nil || cm.ID == "" {
		return nil, nil
	}
	converted := convertCommit(cm)
	return &converted, nil
}
