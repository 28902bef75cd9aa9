// Package rancher talks to the Rancher v3 API.
package rancher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/upstream"
)

const serviceName = "rancher"

type Config struct {
	URL        string
	AccessKey  string
	SecretKey  string
	HTTPClient *http.Client
}

type Client struct {
	api *upstream.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		api: &upstream.Client{
			Service: serviceName,
			BaseURL: cfg.URL,
			HTTP:    cfg.HTTPClient,
			Auth:    upstream.BasicAuth(cfg.AccessKey, cfg.SecretKey),
		},
	}
}

type collection[T any] struct {
	Data []T `json:"data"`
}

type projectResource struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type workloadResource struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	NamespaceID string           `json:"namespaceId"`
	ProjectID   string           `json:"projectId"`
	Type        string           `json:"type"`
	Containers  []map[string]any `json:"containers"`
}

type revisionResource struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	CreatedTS   int64            `json:"createdTS"`
	Created     string           `json:"created"`
	NamespaceID string           `json:"namespaceId"`
	Containers  []map[string]any `json:"containers"`
}

func (p projectResource) toProject() deploytypes.Project {
	return deploytypes.Project{ID: p.ID, Name: p.Name, State: p.State}
}

func (w workloadResource) toWorkload(projectID string) deploytypes.Workload {
	if w.ProjectID != "" {
		projectID = w.ProjectID
	}
	containers := make([]deploytypes.Container, 0, len(w.Containers))
	for _, spec := range w.Containers {
		containers = append(containers, deploytypes.Container{
			Name:  stringField(spec, "name"),
			Image: stringField(spec, "image"),
			Spec:  spec,
		})
	}
	return deploytypes.Workload{
		ProjectID:   projectID,
		ID:          w.ID,
		Name:        w.Name,
		NamespaceID: w.NamespaceID,
		Type:        w.Type,
		Containers:  containers,
	}
}

func (r revisionResource) toRevision() deploytypes.Revision {
	created := time.UnixMilli(r.CreatedTS)
	if r.CreatedTS == 0 && r.Created != "" {
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			created = t
		}
	}
	var image string
	if len(r.Containers) > 0 {
		image = stringField(r.Containers[0], "image")
	}
	return deploytypes.Revision{
		ID:          r.ID,
		Name:        r.Name,
		Created:     created,
		Image:       image,
		NamespaceID: r.NamespaceID,
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// CheckProject returns the first project whose field matches, or nil.
func (c *Client) CheckProject(ctx context.Context, sel deploytypes.Selector) (*deploytypes.Project, error) {
	var res collection[projectResource]
	found, err := c.api.Get(ctx, "check project", "projects", url.Values{sel.Field: []string{sel.Value}}, &res)
	if err != nil || !found || len(res.Data) == 0 {
		return nil, err
	}
	p := res.Data[0].toProject()
	return &p, nil
}

// CheckWorkload returns the first workload of project whose field matches, or nil.
func (c *Client) CheckWorkload(ctx context.Context, project deploytypes.Project, sel deploytypes.Selector) (*deploytypes.Workload, error) {
	var res collection[workloadResource]
	path := fmt.Sprintf("projects/%s/workloads", url.PathEscape(project.ID))
	found, err := c.api.Get(ctx, "check workload", path, url.Values{sel.Field: []string{sel.Value}}, &res)
	if err != nil || !found || len(res.Data) == 0 {
		return nil, err
	}
	w := res.Data[0].toWorkload(project.ID)
	return &w, nil
}

// ListRevisions returns the workload revisions in platform order.
func (c *Client) ListRevisions(ctx context.Context, project deploytypes.Project, workload deploytypes.Workload) ([]deploytypes.Revision, error) {
	const op = "list revisions"
	var res collection[revisionResource]
	path := fmt.Sprintf("projects/%s/workloads/%s/revisions", url.PathEscape(project.ID), url.PathEscape(workload.ID))
	resp, err := c.api.Do(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, op)
	}
	if err := resp.Decode(serviceName, op, &res); err != nil {
		return nil, err
	}

	revisions := make([]deploytypes.Revision, 0, len(res.Data))
	for _, r := range res.Data {
		revisions = append(revisions, r.toRevision())
	}
	return revisions, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]deploytypes.Project, error) {
	const op = "list projects"
	var res collection[projectResource]
	resp, err := c.api.Do(ctx, op, http.MethodGet, "projects", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, op)
	}
	if err := resp.Decode(serviceName, op, &res); err != nil {
		return nil, err
	}

	projects := make([]deploytypes.Project, 0, len(res.Data))
	for _, p := range res.Data {
		projects = append(projects, p.toProject())
	}
	return projects, nil
}

func (c *Client) ListWorkloads(ctx context.Context, project deploytypes.Project) ([]deploytypes.Workload, error) {
	const op = "list workloads"
	var res collection[workloadResource]
	resp, err := c.api.Do(ctx, op, http.MethodGet, fmt.Sprintf("projects/%s/workloads", url.PathEscape(project.ID)), nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err(serviceName, op)
	}
	if err := resp.Decode(serviceName, op, &res); err != nil {
		return nil, err
	}

	workloads := make([]deploytypes.Workload, 0, len(res.Data))
	for _, w := range res.Data {
		workloads = append(workloads, w.toWorkload(project.ID))
	}
	return workloads, nil
}

// PerformAction sends action to the workload. A deploy replaces the workload
// with payload; every other action is posted as ?action=<name>. It reports
// true only for a 2xx answer.
func (c *Client) PerformAction(ctx context.Context, action deploytypes.Action, workload deploytypes.Workload, payload any) (bool, error) {
	path := fmt.Sprintf("project/%s/workloads/%s", url.PathEscape(workload.ProjectID), url.PathEscape(workload.ID))
	op := string(action)

	var (
		resp *upstream.Response
		err  error
	)
	if action == deploytypes.ActionDeploy {
		resp, err = c.api.Do(ctx, op, http.MethodPut, path, nil, payload)
	} else {
		resp, err = c.api.Do(ctx, op, http.MethodPost, path, url.Values{"action": []string{op}}, payload)
	}
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, resp.Err(serviceName, op)
	}
	return true, nil
}
