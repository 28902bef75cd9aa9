package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, actor, text string) command.Command {
	t.Helper()
	cmd, err := command.Parse(actor, text)
	require.NoError(t, err)
	return cmd
}

func TestListProjects(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list rancher projects"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	require.Len(t, w.sink.sent, 1)
	assert.Equal(t, "*Rancher projects*\n• Staging (id: c-1:p-1)\n• Production (id: c-1:p-2)", w.sink.sent[0].message)
	assert.Empty(t, w.platform.actions)
}

func TestListWorkloads(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list project p1 workloads"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, []string{"project:p1", "workloads"}, w.platform.calls)
	assert.Contains(t, w.sink.sent[0].message, "• web-api (id: deployment:ns:web-api)")
}

func TestListRevisionsNewestFirst(t *testing.T) {
	w := newWorld()
	w.platform.revisions = []deploytypes.Revision{
		{ID: "rs-1", Name: "web-1", Image: "acme/web:1111111", Created: now.Add(-5 * 24 * time.Hour)},
		{ID: "rs-2", Name: "web-2", Image: "acme/web:2222222", Created: now.Add(-2 * time.Hour)},
	}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list project p1 workload w1 revisions"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t,
		"*Revisions of workload w1*\n• web-2: acme/web:2222222 (0 days old)\n• web-1: acme/web:1111111 (5 days old)",
		w.sink.sent[0].message)
}

func TestListUnknownProject(t *testing.T) {
	w := newWorld()
	w.platform.missingProject = true

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list project p9 workload w1 revisions"))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.Equal(t, []string{"project:p9"}, w.platform.calls)
	assert.Equal(t, "Sorry, I couldn't find your Rancher project p9", report.Message)
}

func TestListDenied(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "eve", "list projects"))

	assert.Equal(t, deploytypes.OutcomeDenied, report.Outcome)
	assert.Empty(t, w.platform.calls)
	require.Len(t, w.sink.sent, 1)
	assert.Equal(t, "@eve you're not allowed to perform list projects!", w.sink.sent[0].message)
	assert.Equal(t, w.sink.sent[0].message, report.Message)
}

func TestListWithoutInventory(t *testing.T) {
	w := newWorld()
	w.deps.Inventory = nil

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list projects"))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrMisconfigured)
	assert.Contains(t, report.Message, "couldn't execute your Rancher list projects command")
}

func TestHandleCopiesMessagesToReplies(t *testing.T) {
	w := newWorld()
	reply := &recordingSink{}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list projects"), reply)

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, w.sink.sent, reply.sent)

	// the orchestrator itself keeps its own sink only
	w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list projects"))
	assert.Len(t, reply.sent, 1)
}

func TestDenialReachesReplies(t *testing.T) {
	w := newWorld()
	reply := &recordingSink{}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "eve", "list projects"), reply)

	assert.Equal(t, deploytypes.OutcomeDenied, report.Outcome)
	require.Len(t, reply.sent, 1)
	assert.Equal(t, "@eve you're not allowed to perform list projects!", reply.sent[0].message)
}

func TestListSourceRepositories(t *testing.T) {
	w := newWorld()
	w.source.repos = []deploytypes.Repository{
		{Name: "web", Private: true, OpenIssues: 2, Description: "storefront"},
		{Name: "docs"},
	}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list github repos"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, []string{"repos"}, w.source.calls)
	assert.Equal(t, "*Repositories*\n• web (private, 2 open issues): storefront\n• docs (public, 0 open issues)", report.Message)
	assert.Empty(t, w.platform.calls)
}

func TestListCommits(t *testing.T) {
	w := newWorld()
	w.source.commits = []deploytypes.Commit{
		{SHA: "abc1234def", Author: "Ada", Date: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), Message: "fix login\n\nlonger body"},
	}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list github web commits"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, []string{"repo:web", "commits:web"}, w.source.calls)
	assert.Equal(t, "*Commits of repository web*\n• abc1234def by Ada at 10:30 01-03-2026: fix login", report.Message)
}

func TestListCommitsUnknownRepository(t *testing.T) {
	w := newWorld()
	w.source.missingRepo = true

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list github nope commits"))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.Equal(t, []string{"repo:nope"}, w.source.calls)
	assert.Equal(t, "Sorry, I couldn't find repository nope", report.Message)
}

func TestListImageRepositories(t *testing.T) {
	w := newWorld()
	w.registry.repos = []deploytypes.ImageRepository{{Namespace: "acme", Name: "web", Description: "storefront"}}

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list quay repos"))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, "*Image repositories*\n• acme/web: storefront", report.Message)
}

func TestSourceListingsDenied(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "eve", "list github web commits"))

	assert.Equal(t, deploytypes.OutcomeDenied, report.Outcome)
	assert.Empty(t, w.source.calls)
	assert.Equal(t, "@eve you're not allowed to perform list commits!", report.Message)
}

func TestListWithoutRegistry(t *testing.T) {
	w := newWorld()
	w.deps.Images = nil

	report := w.orchestrator(t).Handle(context.Background(), parse(t, "alice", "list quay repos"))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrMisconfigured)
	assert.Contains(t, report.Message, "couldn't execute your registry list image repositories command")
}
