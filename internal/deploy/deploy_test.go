package deploy

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/dispatch"
	"github.com/haloydev/deploybot/internal/lock"
	"github.com/haloydev/deploybot/internal/metrics"
	"github.com/haloydev/deploybot/internal/permission"
	"github.com/haloydev/deploybot/internal/upstream"
	"github.com/haloydev/deploybot/internal/verify"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	actor    string
	message  string
	severity deploytypes.Severity
}

type recordingSink struct {
	sent []notification
}

func (r *recordingSink) Notify(_ context.Context, actor, message string, severity deploytypes.Severity) error {
	r.sent = append(r.sent, notification{actor: actor, message: message, severity: severity})
	return nil
}

// terminal returns the messages that are not progress updates.
func (r *recordingSink) terminal() []notification {
	var out []notification
	for _, n := range r.sent {
		if n.severity != deploytypes.SeverityInfo {
			out = append(out, n)
		}
	}
	return out
}

type fakeSource struct {
	missingRepo   bool
	missingCommit bool
	repos         []deploytypes.Repository
	commits       []deploytypes.Commit
	calls         []string
}

func (f *fakeSource) ListRepositories(context.Context) ([]deploytypes.Repository, error) {
	f.calls = append(f.calls, "repos")
	return f.repos, nil
}

func (f *fakeSource) ListCommits(_ context.Context, repo string) ([]deploytypes.Commit, error) {
	f.calls = append(f.calls, "commits:"+repo)
	return f.commits, nil
}

func (f *fakeSource) CheckRepository(_ context.Context, name string) (*deploytypes.Repository, error) {
	f.calls = append(f.calls, "repo:"+name)
	if f.missingRepo {
		return nil, nil
	}
	return &deploytypes.Repository{ID: "1", Name: name}, nil
}

func (f *fakeSource) CheckCommit(_ context.Context, repo, sha string) (*deploytypes.Commit, error) {
	f.calls = append(f.calls, "commit:"+sha)
	if f.missingCommit {
		return nil, nil
	}
	return &deploytypes.Commit{SHA: sha}, nil
}

type fakeRegistry struct {
	missingRepo bool
	missingTag  bool
	repos       []deploytypes.ImageRepository
	calls       []string
}

func (f *fakeRegistry) ListRepositories(context.Context) ([]deploytypes.ImageRepository, error) {
	f.calls = append(f.calls, "repos")
	return f.repos, nil
}

func (f *fakeRegistry) CheckRepository(_ context.Context, name string) (*deploytypes.ImageRepository, error) {
	f.calls = append(f.calls, "repo:"+name)
	if f.missingRepo {
		return nil, nil
	}
	ns, repo, _ := strings.Cut(name, "/")
	return &deploytypes.ImageRepository{Namespace: ns, Name: repo}, nil
}

func (f *fakeRegistry) CheckImage(_ context.Context, repo, tag string) ([]deploytypes.ImageTag, error) {
	f.calls = append(f.calls, "image:"+repo+":"+tag)
	if f.missingTag {
		return nil, nil
	}
	return []deploytypes.ImageTag{{Name: tag}}, nil
}

type performed struct {
	action   deploytypes.Action
	workload deploytypes.Workload
	payload  any
}

type fakePlatform struct {
	missingProject  bool
	missingWorkload bool
	workloadErr     error
	revisions       []deploytypes.Revision
	reject          error
	calls           []string
	actions         []performed
}

func (f *fakePlatform) CheckProject(_ context.Context, sel deploytypes.Selector) (*deploytypes.Project, error) {
	f.calls = append(f.calls, "project:"+sel.Value)
	if f.missingProject {
		return nil, nil
	}
	return &deploytypes.Project{ID: "c-1:p-1", Name: sel.Value}, nil
}

func (f *fakePlatform) CheckWorkload(_ context.Context, project deploytypes.Project, sel deploytypes.Selector) (*deploytypes.Workload, error) {
	f.calls = append(f.calls, "workload:"+sel.Value)
	if f.workloadErr != nil {
		return nil, f.workloadErr
	}
	if f.missingWorkload {
		return nil, nil
	}
	return &deploytypes.Workload{
		ProjectID:  project.ID,
		ID:         "deployment:ns:" + sel.Value,
		Name:       sel.Value,
		Containers: []deploytypes.Container{{Name: "app", Image: "quay.io/acme/web-api:0000000"}},
	}, nil
}

func (f *fakePlatform) ListRevisions(context.Context, deploytypes.Project, deploytypes.Workload) ([]deploytypes.Revision, error) {
	f.calls = append(f.calls, "revisions")
	return f.revisions, nil
}

func (f *fakePlatform) ListProjects(context.Context) ([]deploytypes.Project, error) {
	f.calls = append(f.calls, "projects")
	return []deploytypes.Project{{ID: "c-1:p-1", Name: "Staging"}, {ID: "c-1:p-2", Name: "Production"}}, nil
}

func (f *fakePlatform) ListWorkloads(context.Context, deploytypes.Project) ([]deploytypes.Workload, error) {
	f.calls = append(f.calls, "workloads")
	return []deploytypes.Workload{{ID: "deployment:ns:web-api", Name: "web-api"}}, nil
}

func (f *fakePlatform) PerformAction(_ context.Context, action deploytypes.Action, workload deploytypes.Workload, payload any) (bool, error) {
	f.actions = append(f.actions, performed{action: action, workload: workload, payload: payload})
	if f.reject != nil {
		return false, f.reject
	}
	return true, nil
}

type world struct {
	source   *fakeSource
	registry *fakeRegistry
	platform *fakePlatform
	sink     *recordingSink
	staff    *recordingSink
	metrics  *metrics.Registry
	deps     Deps
}

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newWorld() *world {
	w := &world{
		source:   &fakeSource{},
		registry: &fakeRegistry{},
		platform: &fakePlatform{},
		sink:     &recordingSink{},
		staff:    &recordingSink{},
		metrics:  metrics.NewRegistry(),
	}
	w.deps = Deps{
		Gate:       permission.NewGate(permission.NewStatic([]string{"alice"}), w.sink),
		Planner:    verify.Catalog{Source: w.source, Registry: w.registry, Platform: w.platform},
		Revisions:  w.platform,
		Dispatcher: dispatch.New(w.platform),
		Inventory:  w.platform,
		Sources:    w.source,
		Images:     w.registry,
		Sink:       w.sink,
		Staff:      w.staff,
		StaffNames: []string{"ops"},
		Metrics:    w.metrics,
		Now:        func() time.Time { return now },
	}
	return w
}

func (w *world) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(w.deps)
	require.NoError(t, err)
	return o
}

func (w *world) collaboratorCalls() int {
	return len(w.source.calls) + len(w.registry.calls) + len(w.platform.calls) + len(w.platform.actions)
}

func deployRequest(dryRun bool) deploytypes.DeploymentRequest {
	return deploytypes.DeploymentRequest{
		ID:          "req-1",
		Actor:       "alice",
		Action:      deploytypes.ActionDeploy,
		Environment: deploytypes.EnvironmentStaging,
		Workload:    deploytypes.ByName("web-api"),
		Commit:      "abc1234",
		DryRun:      dryRun,
	}
}

func workloadRequest(action deploytypes.Action, sel deploytypes.RollbackSelector) deploytypes.DeploymentRequest {
	return deploytypes.DeploymentRequest{
		ID:       "req-2",
		Actor:    "alice",
		Action:   action,
		Project:  deploytypes.ByID("p1"),
		Workload: deploytypes.ByID("w1"),
		Rollback: sel,
	}
}

func TestDeployDryRunNeverDispatches(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Run(context.Background(), deployRequest(true))

	assert.Equal(t, deploytypes.OutcomeCompleted, report.Outcome)
	assert.True(t, report.DryRun)
	assert.Empty(t, w.platform.actions)
	assert.Equal(t, []State{
		StateIdle, StateAuthorizing,
		StateVerifying, StateVerifying, StateVerifying, StateVerifying, StateVerifying, StateVerifying,
		StateDispatching, StateCompleted,
	}, report.Trail)

	terminal := w.sink.terminal()
	require.Len(t, terminal, 1)
	assert.Contains(t, terminal[0].message, "Dry run")
	assert.Contains(t, terminal[0].message, "nothing was changed")
	dispatches, err := testutil.GatherAndCount(w.metrics, "deploybot_dispatches_total")
	require.NoError(t, err)
	assert.Zero(t, dispatches)
}

func TestDeployDispatchesCommitTag(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Run(context.Background(), deployRequest(false))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	require.Len(t, w.platform.actions, 1)
	act := w.platform.actions[0]
	assert.Equal(t, deploytypes.ActionDeploy, act.action)
	assert.Equal(t, "deployment:ns:web-api", act.workload.ID)

	payload := act.payload.(map[string]any)
	containers := payload["containers"].([]map[string]any)
	assert.Equal(t, "quay.io/acme/web-api:abc1234", containers[0]["image"])

	assert.Equal(t, []string{"repo:web-api", "commit:abc1234"}, w.source.calls)
	assert.Equal(t, []string{"repo:acme/web-api", "image:acme/web-api:abc1234"}, w.registry.calls)

	terminal := w.sink.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, deploytypes.SeveritySuccess, terminal[0].severity)
	assert.Equal(t, "Executed deploy successfully on workload web-api in Staging", terminal[0].message)
	assert.Equal(t, "*Starting deploy operation: workload web-api in Staging to commit abc1234...*", w.sink.sent[0].message)

	dispatches, err := testutil.GatherAndCount(w.metrics, "deploybot_dispatches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, dispatches)
}

func TestVerificationShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(w *world)
		calls   int
		message string
	}{
		{name: "repository", setup: func(w *world) { w.source.missingRepo = true }, calls: 1, message: "Sorry, I couldn't find your repository web-api"},
		{name: "commit", setup: func(w *world) { w.source.missingCommit = true }, calls: 2, message: "Sorry, I couldn't find your commit abc1234 in repository web-api"},
		{name: "project", setup: func(w *world) { w.platform.missingProject = true }, calls: 3, message: "Sorry, I couldn't find your Rancher project Staging"},
		{name: "workload", setup: func(w *world) { w.platform.missingWorkload = true }, calls: 4, message: "Sorry, I couldn't find your workload web-api in project c-1:p-1"},
		{name: "image repository", setup: func(w *world) { w.registry.missingRepo = true }, calls: 5, message: "Sorry, I couldn't find your image repository acme/web-api"},
		{name: "image tag", setup: func(w *world) { w.registry.missingTag = true }, calls: 6, message: "Sorry, I couldn't find your image acme/web-api:abc1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			tt.setup(w)

			report := w.orchestrator(t).Run(context.Background(), deployRequest(false))

			assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
			assert.ErrorIs(t, report.Err, deploytypes.ErrNotFound)
			assert.Equal(t, tt.calls, w.collaboratorCalls())
			assert.Empty(t, w.platform.actions)
			assert.Equal(t, StateAborted, report.Final())

			terminal := w.sink.terminal()
			require.Len(t, terminal, 1)
			assert.Equal(t, tt.message, terminal[0].message)
			assert.Empty(t, w.staff.sent)
		})
	}
}

func TestRollbackNamedRevision(t *testing.T) {
	w := newWorld()
	base := now.Add(-10 * 24 * time.Hour)
	for i, name := range []string{"rev-40", "rev-41", "rev-42", "rev-43", "rev-44"} {
		w.platform.revisions = append(w.platform.revisions, deploytypes.Revision{
			ID:      "rs-" + name,
			Name:    name,
			Created: base.Add(time.Duration(i) * time.Hour),
		})
	}

	report := w.orchestrator(t).Run(context.Background(),
		workloadRequest(deploytypes.ActionRollback, deploytypes.RollbackSelector{Kind: deploytypes.RollbackRevision, Name: "rev-42"}))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	require.Len(t, w.platform.actions, 1)
	assert.Equal(t, map[string]any{"replicaSetId": "rs-rev-42"}, w.platform.actions[0].payload)
	assert.Equal(t, "rev-42", report.Revision.Name)
	assert.Contains(t, report.Trail, StateResolving)
}

func TestRollbackLatestIgnoresListOrder(t *testing.T) {
	w := newWorld()
	w.platform.revisions = []deploytypes.Revision{
		{ID: "rs-old", Name: "old", Created: now.Add(-72 * time.Hour)},
		{ID: "rs-new", Name: "new", Created: now.Add(-time.Hour)},
		{ID: "rs-mid", Name: "mid", Created: now.Add(-24 * time.Hour)},
	}
	o := w.orchestrator(t)

	report := o.Run(context.Background(), workloadRequest(deploytypes.ActionRollback, deploytypes.RollbackSelector{Kind: deploytypes.RollbackLatest}))
	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, "rs-new", report.Revision.ID)

	report = o.Run(context.Background(), workloadRequest(deploytypes.ActionRollback, deploytypes.RollbackSelector{Kind: deploytypes.RollbackPrevious}))
	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, "rs-mid", report.Revision.ID)
}

func TestRollbackResolutionFailures(t *testing.T) {
	tests := []struct {
		name      string
		revisions []deploytypes.Revision
		selector  deploytypes.RollbackSelector
	}{
		{
			name:      "unknown revision",
			revisions: []deploytypes.Revision{{ID: "rs-1", Name: "rev-1", Created: now}},
			selector:  deploytypes.RollbackSelector{Kind: deploytypes.RollbackRevision, Name: "rev-42"},
		},
		{
			name:      "previous with one revision",
			revisions: []deploytypes.Revision{{ID: "rs-1", Name: "rev-1", Created: now}},
			selector:  deploytypes.RollbackSelector{Kind: deploytypes.RollbackPrevious},
		},
		{
			name:     "latest without revisions",
			selector: deploytypes.RollbackSelector{Kind: deploytypes.RollbackLatest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			w.platform.revisions = tt.revisions

			report := w.orchestrator(t).Run(context.Background(), workloadRequest(deploytypes.ActionRollback, tt.selector))

			assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
			assert.ErrorIs(t, report.Err, deploytypes.ErrNotFound)
			assert.Empty(t, w.platform.actions)
			terminal := w.sink.terminal()
			require.Len(t, terminal, 1)
			assert.Contains(t, terminal[0].message, "couldn't find your Rancher revision")
		})
	}
}

func TestAmbiguousRollbackMakesNoCalls(t *testing.T) {
	w := newWorld()
	allowList := &countingList{allowed: true}
	w.deps.Gate = permission.NewGate(allowList, w.sink)

	report := w.orchestrator(t).Run(context.Background(),
		workloadRequest(deploytypes.ActionRollback, deploytypes.RollbackSelector{Name: "rev-42"}))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrAmbiguousRequest)
	assert.Zero(t, w.collaboratorCalls())
	assert.Zero(t, allowList.lookups)
	assert.Equal(t, []State{StateIdle, StateAborted}, report.Trail)
	require.Len(t, w.sink.sent, 1)
	assert.Contains(t, w.sink.sent[0].message, "ambiguous")
}

func TestPauseSkipsResolver(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Run(context.Background(), workloadRequest(deploytypes.ActionPause, deploytypes.RollbackSelector{}))

	require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	assert.Equal(t, []string{"project:p1", "workload:w1"}, w.platform.calls)
	require.Len(t, w.platform.actions, 1)
	assert.Equal(t, deploytypes.ActionPause, w.platform.actions[0].action)
	assert.Nil(t, w.platform.actions[0].payload)
	assert.NotContains(t, report.Trail, StateResolving)
}

func TestDeniedMakesNoCalls(t *testing.T) {
	w := newWorld()
	req := deployRequest(false)
	req.Actor = "mallory"

	report := w.orchestrator(t).Run(context.Background(), req)

	assert.Equal(t, deploytypes.OutcomeDenied, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrDenied)
	assert.Zero(t, w.collaboratorCalls())
	assert.Equal(t, []State{StateIdle, StateAuthorizing, StateDenied}, report.Trail)
	require.Len(t, w.sink.sent, 1)
	assert.Equal(t, "@mallory you're not allowed to perform deploy!", w.sink.sent[0].message)
	assert.Equal(t, w.sink.sent[0].message, report.Message)
}

func TestUpstreamErrorFails(t *testing.T) {
	w := newWorld()
	w.platform.workloadErr = &upstream.Error{Service: "rancher", Op: "check workload", StatusCode: http.StatusBadGateway, Body: "bad gateway"}
	req := deployRequest(false)
	req.Text = "deploy abc1234 to workload web-api in Staging"

	report := w.orchestrator(t).Run(context.Background(), req)

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode(report.Err))
	assert.Len(t, w.registry.calls, 0)
	assert.Empty(t, w.platform.actions)

	terminal := w.sink.terminal()
	require.Len(t, terminal, 1)
	assert.Contains(t, terminal[0].message, "couldn't execute your Rancher action deploy")
	assert.Contains(t, terminal[0].message, "bad gateway")

	require.Len(t, w.staff.sent, 1)
	assert.Contains(t, w.staff.sent[0].message, "'deploy abc1234 to workload web-api in Staging'")
	assert.Contains(t, w.staff.sent[0].message, "cc @ops")
}

func TestDispatchRejectedFails(t *testing.T) {
	w := newWorld()
	w.platform.reject = &upstream.Error{Service: "rancher", Op: "resume", StatusCode: http.StatusUnprocessableEntity}

	report := w.orchestrator(t).Run(context.Background(), workloadRequest(deploytypes.ActionResume, deploytypes.RollbackSelector{}))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.Equal(t, http.StatusUnprocessableEntity, upstream.StatusCode(report.Err))
	assert.Len(t, w.platform.actions, 1)
	assert.Len(t, w.sink.terminal(), 1)
}

func TestMisconfiguredPlanFailsBeforeGate(t *testing.T) {
	w := newWorld()
	allowList := &countingList{allowed: true}
	w.deps.Gate = permission.NewGate(allowList, w.sink)
	w.deps.Planner = verify.Catalog{Platform: w.platform}

	report := w.orchestrator(t).Run(context.Background(), deployRequest(false))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrMisconfigured)
	assert.Zero(t, allowList.lookups)
	assert.Zero(t, w.collaboratorCalls())
}

type stepFunc struct {
	name  string
	check func(ctx context.Context) (verify.Result, error)
	calls int
}

func (s *stepFunc) Name() string                { return s.name }
func (s *stepFunc) Subject(*verify.Facts) string { return s.name }
func (s *stepFunc) Check(ctx context.Context, _ *verify.Facts) (verify.Result, error) {
	s.calls++
	return s.check(ctx)
}

type fixedPlan []verify.Step

func (p fixedPlan) Plan(deploytypes.Action) ([]verify.Step, error) { return p, nil }

func TestPanicInStepFails(t *testing.T) {
	w := newWorld()
	w.deps.Planner = fixedPlan{&stepFunc{name: "explode", check: func(context.Context) (verify.Result, error) {
		panic("nil map")
	}}}

	report := w.orchestrator(t).Run(context.Background(), workloadRequest(deploytypes.ActionPause, deploytypes.RollbackSelector{}))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.ErrorContains(t, report.Err, "nil map")
	assert.Empty(t, w.platform.actions)
	assert.Len(t, w.sink.terminal(), 1)
}

func TestCancellationStopsPendingSteps(t *testing.T) {
	w := newWorld()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &stepFunc{name: "first", check: func(context.Context) (verify.Result, error) {
		cancel()
		return verify.Result{Found: true, Subject: "first"}, nil
	}}
	second := &stepFunc{name: "second", check: func(context.Context) (verify.Result, error) {
		return verify.Result{Found: true, Subject: "second"}, nil
	}}
	w.deps.Planner = fixedPlan{first, second}

	report := w.orchestrator(t).Run(ctx, workloadRequest(deploytypes.ActionPause, deploytypes.RollbackSelector{}))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.ErrorIs(t, report.Err, context.Canceled)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
	assert.Empty(t, w.platform.actions)

	terminal := w.sink.terminal()
	require.Len(t, terminal, 1)
	assert.Contains(t, terminal[0].message, "Cancelled pause")
}

func TestCancelledBeforeStart(t *testing.T) {
	w := newWorld()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := w.orchestrator(t).Run(ctx, deployRequest(false))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.Zero(t, w.collaboratorCalls())
}

func TestBusyWorkloadAborts(t *testing.T) {
	w := newWorld()
	locker := lock.NewMemory(20 * time.Millisecond)
	w.deps.Locker = locker

	held, err := locker.Acquire(context.Background(), lock.Key("c-1:p-1", "deployment:ns:w1"))
	require.NoError(t, err)
	defer held.Release(context.Background())

	o := w.orchestrator(t)
	report := o.Run(context.Background(), workloadRequest(deploytypes.ActionResume, deploytypes.RollbackSelector{}))
	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.ErrorIs(t, report.Err, lock.ErrBusy)
	assert.Empty(t, w.platform.actions)

	dryRun := workloadRequest(deploytypes.ActionResume, deploytypes.RollbackSelector{})
	dryRun.DryRun = true
	report = o.Run(context.Background(), dryRun)
	assert.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, "dry runs do not lock")
}

func TestLockReleasedAfterRun(t *testing.T) {
	w := newWorld()
	w.deps.Locker = lock.NewMemory(20 * time.Millisecond)
	o := w.orchestrator(t)

	for range 2 {
		report := o.Run(context.Background(), workloadRequest(deploytypes.ActionPause, deploytypes.RollbackSelector{}))
		require.Equal(t, deploytypes.OutcomeCompleted, report.Outcome, report.Err)
	}
	assert.Len(t, w.platform.actions, 2)
}

func TestInvalidRequestsRejected(t *testing.T) {
	tests := []struct {
		name string
		edit func(r *deploytypes.DeploymentRequest)
	}{
		{name: "long commit", edit: func(r *deploytypes.DeploymentRequest) { r.Commit = "abc1234def" }},
		{name: "uppercase commit", edit: func(r *deploytypes.DeploymentRequest) { r.Commit = "ABC1234" }},
		{name: "no environment", edit: func(r *deploytypes.DeploymentRequest) { r.Environment = "" }},
		{name: "no workload", edit: func(r *deploytypes.DeploymentRequest) { r.Workload = deploytypes.Selector{} }},
		{name: "unknown action", edit: func(r *deploytypes.DeploymentRequest) { r.Action = "restart" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			req := deployRequest(false)
			tt.edit(&req)

			report := w.orchestrator(t).Run(context.Background(), req)

			assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
			assert.ErrorIs(t, report.Err, deploytypes.ErrInvalidRequest)
			assert.Zero(t, w.collaboratorCalls())
		})
	}
}

func TestPauseWithRevisionRejected(t *testing.T) {
	w := newWorld()

	report := w.orchestrator(t).Run(context.Background(),
		workloadRequest(deploytypes.ActionPause, deploytypes.RollbackSelector{Kind: deploytypes.RollbackLatest}))

	assert.Equal(t, deploytypes.OutcomeAborted, report.Outcome)
	assert.ErrorIs(t, report.Err, deploytypes.ErrInvalidRequest)
	assert.Zero(t, w.collaboratorCalls())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	require.ErrorIs(t, err, deploytypes.ErrMisconfigured)
	assert.Contains(t, err.Error(), "permission gate")
	assert.Contains(t, err.Error(), "notification sink")
}

func TestHandleParsedCommand(t *testing.T) {
	w := newWorld()
	cmd, err := command.Parse("alice", "pause rancher project p1 workload w1 dry run")
	require.NoError(t, err)

	report := w.orchestrator(t).Handle(context.Background(), cmd)

	assert.Equal(t, deploytypes.OutcomeCompleted, report.Outcome)
	assert.True(t, report.DryRun)
	assert.Empty(t, w.platform.actions)
	assert.Equal(t, cmd.Request.ID, report.RequestID)
}

type countingList struct {
	allowed bool
	err     error
	lookups int
}

func (c *countingList) Contains(context.Context, string) (bool, error) {
	c.lookups++
	return c.allowed, c.err
}

func TestPermissionLookupErrorFails(t *testing.T) {
	w := newWorld()
	w.deps.Gate = permission.NewGate(&countingList{err: errors.New("redis down")}, w.sink)

	report := w.orchestrator(t).Run(context.Background(), deployRequest(false))

	assert.Equal(t, deploytypes.OutcomeFailed, report.Outcome)
	assert.ErrorContains(t, report.Err, "redis down")
	assert.Zero(t, w.collaboratorCalls())
}
