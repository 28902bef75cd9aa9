package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/haloydev/deploybot/internal/permission"
	"github.com/haloydev/deploybot/internal/revision"
)

// Handle runs a parsed command, either an action or a listing. Messages go to
// the configured sink and to every reply sink.
func (o *Orchestrator) Handle(ctx context.Context, cmd command.Command, replies ...deploytypes.NotificationSink) Report {
	if len(replies) > 0 {
		o = o.withReplies(replies)
	}
	if cmd.Kind == command.KindAction {
		return o.Run(ctx, cmd.Request)
	}
	return o.List(ctx, cmd)
}

func (o *Orchestrator) withReplies(replies []deploytypes.NotificationSink) *Orchestrator {
	deps := o.deps
	deps.Sink = notify.NewMulti(deps.Logger, append([]deploytypes.NotificationSink{deps.Sink}, replies...)...)
	if g, ok := deps.Gate.(*permission.Gate); ok {
		deps.Gate = g.WithReplies(deps.Logger, replies...)
	}
	return &Orchestrator{deps: deps}
}

// List answers the list commands. Listings change nothing on the platform
// but still go through the permission gate.
func (o *Orchestrator) List(ctx context.Context, cmd command.Command) (report Report) {
	req := cmd.Request
	if req.ID == "" {
		req.ID = command.NewRequestID()
	}
	r := &run{
		o:      o,
		req:    req,
		label:  listLabel(cmd.Kind),
		logger: o.deps.Logger.With("requestID", req.ID, "command", cmd.Kind.String(), "actor", req.Actor),
		msgCtx: context.WithoutCancel(ctx),
		cancel: func(error) {},
		report: Report{RequestID: req.ID, Trail: []State{StateIdle}},
	}
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic while listing: %v", p))
		}
		report = r.report
	}()

	if err := r.list(ctx, cmd); err != nil && !errors.Is(err, errTerminal) {
		r.fail(err)
	}
	return r.report
}

func listLabel(kind command.Kind) string {
	switch kind {
	case command.KindListSourceRepositories, command.KindListCommits:
		return "source control " + kind.String() + " command"
	case command.KindListImageRepositories:
		return "registry " + kind.String() + " command"
	}
	return "Rancher " + kind.String() + " command"
}

func (r *run) list(ctx context.Context, cmd command.Command) error {
	if err := r.listable(cmd.Kind); err != nil {
		return err
	}

	if err := r.enter(ctx, StateAuthorizing); err != nil {
		return err
	}
	allowed, err := r.o.deps.Gate.Authorize(ctx, r.req.Actor, cmd.Kind.String())
	if err != nil {
		return err
	}
	if !allowed {
		return r.deny(cmd.Kind.String())
	}

	switch cmd.Kind {
	case command.KindListSourceRepositories:
		repos, err := r.o.deps.Sources.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("listing repositories: %w", err)
		}
		return r.complete(repositoriesMessage(repos))
	case command.KindListCommits:
		return r.listCommits(ctx, cmd.Repository)
	case command.KindListImageRepositories:
		repos, err := r.o.deps.Images.ListRepositories(ctx)
		if err != nil {
			return fmt.Errorf("listing image repositories: %w", err)
		}
		return r.complete(imageRepositoriesMessage(repos))
	}
	return r.listPlatform(ctx, cmd.Kind)
}

// listable checks that the collaborator a listing needs is configured.
func (r *run) listable(kind command.Kind) error {
	switch kind {
	case command.KindListProjects, command.KindListWorkloads, command.KindListRevisions:
		if r.o.deps.Inventory == nil {
			return fmt.Errorf("%w: listing needs an orchestration platform", deploytypes.ErrMisconfigured)
		}
	case command.KindListSourceRepositories, command.KindListCommits:
		if r.o.deps.Sources == nil {
			return fmt.Errorf("%w: listing needs a source control client", deploytypes.ErrMisconfigured)
		}
	case command.KindListImageRepositories:
		if r.o.deps.Images == nil {
			return fmt.Errorf("%w: listing needs an image registry client", deploytypes.ErrMisconfigured)
		}
	default:
		return fmt.Errorf("%w: %s is not a listing", deploytypes.ErrInvalidRequest, kind)
	}
	return nil
}

func (r *run) listCommits(ctx context.Context, name string) error {
	repo, err := r.o.deps.Sources.CheckRepository(ctx, name)
	if err != nil {
		return fmt.Errorf("checking repository %s: %w", name, err)
	}
	if repo == nil {
		return r.abort(deploytypes.ErrNotFound, fmt.Sprintf("Sorry, I couldn't find repository %s", name))
	}
	commits, err := r.o.deps.Sources.ListCommits(ctx, repo.Name)
	if err != nil {
		return fmt.Errorf("listing commits of %s: %w", repo.Name, err)
	}
	return r.complete(commitsMessage(*repo, commits))
}

func (r *run) listPlatform(ctx context.Context, kind command.Kind) error {
	inv := r.o.deps.Inventory
	if kind == command.KindListProjects {
		projects, err := inv.ListProjects(ctx)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		return r.complete(projectsMessage(projects))
	}

	project, err := inv.CheckProject(ctx, r.req.Project)
	if err != nil {
		return fmt.Errorf("checking project %s: %w", r.req.Project, err)
	}
	if project == nil {
		return r.abort(deploytypes.ErrNotFound, fmt.Sprintf("Sorry, I couldn't find your Rancher project %s", r.req.Project))
	}

	if kind == command.KindListWorkloads {
		workloads, err := inv.ListWorkloads(ctx, *project)
		if err != nil {
			return fmt.Errorf("listing workloads of project %s: %w", project.ID, err)
		}
		return r.complete(workloadsMessage(*project, workloads))
	}

	workload, err := inv.CheckWorkload(ctx, *project, r.req.Workload)
	if err != nil {
		return fmt.Errorf("checking workload %s: %w", r.req.Workload, err)
	}
	if workload == nil {
		return r.abort(deploytypes.ErrNotFound, fmt.Sprintf("Sorry, I couldn't find your Rancher workload %s in project %s", r.req.Workload, project.ID))
	}
	revisions, err := inv.ListRevisions(ctx, *project, *workload)
	if err != nil {
		return fmt.Errorf("listing revisions of workload %s: %w", workload.ID, err)
	}
	return r.complete(r.revisionsMessage(*workload, revision.Sort(revisions)))
}

func repositoriesMessage(repos []deploytypes.Repository) string {
	if len(repos) == 0 {
		return "There are no repositories"
	}
	var b strings.Builder
	b.WriteString("*Repositories*")
	for _, repo := range repos {
		visibility := "public"
		if repo.Private {
			visibility = "private"
		}
		fmt.Fprintf(&b, "\n• %s (%s, %d open issues)", repo.Name, visibility, repo.OpenIssues)
		if repo.Description != "" {
			fmt.Fprintf(&b, ": %s", repo.Description)
		}
	}
	return b.String()
}

func commitsMessage(repo deploytypes.Repository, commits []deploytypes.Commit) string {
	if len(commits) == 0 {
		return fmt.Sprintf("There are no commits in repository %s", repo.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Commits of repository %s*", repo.Name)
	for _, cm := range commits {
		subject, _, _ := strings.Cut(cm.Message, "\n")
		fmt.Fprintf(&b, "\n• %s by %s", cm.SHA, cm.Author)
		if !cm.Date.IsZero() {
			fmt.Fprintf(&b, " at %s", cm.Date.UTC().Format("15:04 02-01-2006"))
		}
		fmt.Fprintf(&b, ": %s", subject)
	}
	return b.String()
}

func imageRepositoriesMessage(repos []deploytypes.ImageRepository) string {
	if len(repos) == 0 {
		return "There are no image repositories"
	}
	var b strings.Builder
	b.WriteString("*Image repositories*")
	for _, repo := range repos {
		fmt.Fprintf(&b, "\n• %s", repo.Path())
		if repo.Description != "" {
			fmt.Fprintf(&b, ": %s", repo.Description)
		}
	}
	return b.String()
}

func projectsMessage(projects []deploytypes.Project) string {
	if len(projects) == 0 {
		return "There are no Rancher projects"
	}
	var b strings.Builder
	b.WriteString("*Rancher projects*")
	for _, p := range projects {
		fmt.Fprintf(&b, "\n• %s (id: %s)", p.Name, p.ID)
	}
	return b.String()
}

func workloadsMessage(project deploytypes.Project, workloads []deploytypes.Workload) string {
	if len(workloads) == 0 {
		return fmt.Sprintf("There are no workloads in project %s", project.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Workloads in project %s*", project.Name)
	for _, w := range workloads {
		fmt.Fprintf(&b, "\n• %s (id: %s)", w.Name, w.ID)
	}
	return b.String()
}

func (r *run) revisionsMessage(workload deploytypes.Workload, revisions []deploytypes.Revision) string {
	if len(revisions) == 0 {
		return fmt.Sprintf("There are no revisions of workload %s", workload.Name)
	}
	now := r.o.deps.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "*Revisions of workload %s*", workload.Name)
	for _, rev := range revisions {
		fmt.Fprintf(&b, "\n• %s: %s (%d days old)", rev.Name, rev.Image, rev.AgeDays(now))
	}
	return b.String()
}
