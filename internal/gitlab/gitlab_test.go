package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "glpat-test", r.Header.Get("PRIVATE-TOKEN"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.EscapedPath() {
		case "/api/v4/projects/acme%2Fweb":
			w.Write([]byte(`{"id":7,"name":"web","path_with_namespace":"acme/web","web_url":"https://gitlab.example/acme/web"}`))
		case "/api/v4/projects/acme%2Fweb/repository/commits/abc1234":
			w.Write([]byte(`{"id":"abc1234ffff","message":"fix","author_name":"Ada"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"404 Not Found"}`))
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL + "/api/v4", Token: "glpat-test", Group: "acme"})
	require.NoError(t, err)
	ctx := context.Background()

	repo, err := client.CheckRepository(ctx, "web")
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, "7", repo.ID)
	assert.Equal(t, "acme/web", repo.FullName)

	repo, err = client.CheckRepository(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, repo)

	cm, err := client.CheckCommit(ctx, "web", "abc1234")
	require.NoError(t, err)
	require.NotNil(t, cm)
	assert.Equal(t, "Ada", cm.Author)

	cm, err = client.CheckCommit(ctx, "web", "0000000")
	require.NoError(t, err)
	assert.Nil(t, cm)
}

func TestClientListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.EscapedPath() {
		case "/api/v4/groups/acme/projects":
			w.Write([]byte(`[{"id":7,"name":"web","path_with_namespace":"acme/web","description":"storefront","visibility":"private","open_issues_count":2}]`))
		case "/api/v4/projects/acme%2Fweb/repository/commits":
			w.Write([]byte(`[{"id":"abc1234ffff","message":"fix","author_name":"Ada","author_email":"ada@acme.test","authored_date":"2026-03-01T10:30:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"404 Not Found"}`))
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL + "/api/v4", Token: "glpat-test", Group: "acme"})
	require.NoError(t, err)
	ctx := context.Background()

	repos, err := client.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "acme/web", repos[0].FullName)
	assert.True(t, repos[0].Private)
	assert.Equal(t, 2, repos[0].OpenIssues)

	commits, err := client.ListCommits(ctx, "web")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Ada", commits[0].Author)
	assert.Equal(t, 2026, commits[0].Date.Year())

	_, err = client.ListCommits(ctx, "missing")
	assert.Error(t, err)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := NewClient(Config{URL: srv.URL + "/api/v4", Token: "glpat-test", Group: "acme"})
	require.NoError(t, err)

	_, err = client.CheckRepository(context.Background(), "web")
	assert.Error(t, err)
}
