// Package deploy runs chat requests through authorization, verification,
// revision resolution and dispatch.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/dispatch"
	"github.com/haloydev/deploybot/internal/lock"
	"github.com/haloydev/deploybot/internal/metrics"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/haloydev/deploybot/internal/permission"
	"github.com/haloydev/deploybot/internal/revision"
	"github.com/haloydev/deploybot/internal/verify"
)

type State string

const (
	StateIdle        State = "Idle"
	StateAuthorizing State = "Authorizing"
	StateVerifying   State = "Verifying"
	StateResolving   State = "Resolving"
	StateDispatching State = "Dispatching"
	StateCompleted   State = "Completed"
	StateAborted     State = "Aborted"
	StateDenied      State = "Denied"
	StateFailed      State = "Failed"
)

// Authorizer decides whether an actor may run an action. It sends the denial
// message itself.
type Authorizer interface {
	Authorize(ctx context.Context, actor, action string) (bool, error)
}

type Planner interface {
	Plan(action deploytypes.Action) ([]verify.Step, error)
}

type ActionDispatcher interface {
	Dispatch(ctx context.Context, action deploytypes.Action, target dispatch.Target) (bool, error)
}

type RevisionLister interface {
	ListRevisions(ctx context.Context, project deploytypes.Project, workload deploytypes.Workload) ([]deploytypes.Revision, error)
}

// Inventory lists platform entities for the list commands.
type Inventory interface {
	CheckProject(ctx context.Context, sel deploytypes.Selector) (*deploytypes.Project, error)
	CheckWorkload(ctx context.Context, project deploytypes.Project, sel deploytypes.Selector) (*deploytypes.Workload, error)
	ListProjects(ctx context.Context) ([]deploytypes.Project, error)
	ListWorkloads(ctx context.Context, project deploytypes.Project) ([]deploytypes.Workload, error)
	ListRevisions(ctx context.Context, project deploytypes.Project, workload deploytypes.Workload) ([]deploytypes.Revision, error)
}

// SourceInventory lists repositories and commits for the source control list
// commands.
type SourceInventory interface {
	CheckRepository(ctx context.Context, name string) (*deploytypes.Repository, error)
	ListRepositories(ctx context.Context) ([]deploytypes.Repository, error)
	ListCommits(ctx context.Context, repo string) ([]deploytypes.Commit, error)
}

type RegistryInventory interface {
	ListRepositories(ctx context.Context) ([]deploytypes.ImageRepository, error)
}

// Deps are the collaborators of an Orchestrator. Locker, the inventories,
// Staff, Metrics and Logger are optional.
type Deps struct {
	Gate       Authorizer
	Planner    Planner
	Revisions  RevisionLister
	Dispatcher ActionDispatcher
	Inventory  Inventory
	Sources    SourceInventory
	Images     RegistryInventory
	Locker     lock.Locker
	Sink       deploytypes.NotificationSink
	Staff      deploytypes.NotificationSink
	StaffNames []string
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	Now        func() time.Time
}

type Orchestrator struct {
	deps Deps
}

func New(deps Deps) (*Orchestrator, error) {
	var missing []string
	if deps.Gate == nil {
		missing = append(missing, "permission gate")
	}
	if deps.Planner == nil {
		missing = append(missing, "verification planner")
	}
	if deps.Revisions == nil {
		missing = append(missing, "revision lister")
	}
	if deps.Dispatcher == nil {
		missing = append(missing, "action dispatcher")
	}
	if deps.Sink == nil {
		missing = append(missing, "notification sink")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", deploytypes.ErrMisconfigured, strings.Join(missing, ", "))
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps}, nil
}

// Report describes how a request ended.
type Report struct {
	RequestID string
	Outcome   deploytypes.Outcome
	Trail     []State
	// Message is the terminal message sent to the actor.
	Message  string
	Revision *deploytypes.Revision
	DryRun   bool
	Err      error
}

func (r Report) Final() State {
	if len(r.Trail) == 0 {
		return StateIdle
	}
	return r.Trail[len(r.Trail)-1]
}

var errTerminal = errors.New("pipeline reached a terminal state")

// run is the state of one request. It is used by a single goroutine.
type run struct {
	o   *Orchestrator
	req deploytypes.DeploymentRequest
	// label names the request in failure messages.
	label  string
	logger *slog.Logger
	// msgCtx outlives the cancellation of the pipeline so terminal messages
	// are still delivered.
	msgCtx context.Context
	cancel context.CancelCauseFunc
	report Report
	facts  *verify.Facts
}

// Run executes one action request and returns once it reached a terminal
// state. Exactly one terminal message is sent to the actor.
func (o *Orchestrator) Run(ctx context.Context, req deploytypes.DeploymentRequest) (report Report) {
	if req.ID == "" {
		req.ID = command.NewRequestID()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		o:      o,
		req:    req,
		label:  "Rancher action " + string(req.Action),
		logger: o.deps.Logger.With("requestID", req.ID, "action", string(req.Action), "actor", req.Actor),
		msgCtx: context.WithoutCancel(ctx),
		cancel: cancel,
		report: Report{RequestID: req.ID, DryRun: req.DryRun, Trail: []State{StateIdle}},
		facts:  &verify.Facts{Request: req},
	}

	o.deps.Metrics.PipelineStarted()
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic during %s: %v", r.report.Final(), p))
		}
		o.deps.Metrics.PipelineFinished(string(req.Action), string(r.report.Outcome))
		r.logger.Info("Pipeline finished", "outcome", string(r.report.Outcome), "dryRun", req.DryRun)
		report = r.report
	}()

	r.logger.Info("Pipeline started", "target", req.Target(), "dryRun", req.DryRun)
	if err := r.execute(ctx); err != nil && !errors.Is(err, errTerminal) {
		r.fail(err)
	}
	return r.report
}

func (r *run) execute(ctx context.Context) error {
	req := r.req
	if err := validate(req); err != nil {
		return r.abort(err, rejectMessage(req, err))
	}

	steps, err := r.o.deps.Planner.Plan(req.Action)
	if err != nil {
		return err
	}

	if err := r.enter(ctx, StateAuthorizing); err != nil {
		return err
	}
	allowed, err := r.o.deps.Gate.Authorize(ctx, req.Actor, string(req.Action))
	if err != nil {
		return err
	}
	if !allowed {
		return r.deny(string(req.Action))
	}

	r.progress(startMessage(req))

	for _, step := range steps {
		if err := r.enter(ctx, StateVerifying); err != nil {
			return err
		}
		if err := r.verify(ctx, step); err != nil {
			return err
		}
	}

	if r.facts.Project == nil || r.facts.Workload == nil {
		return fmt.Errorf("verification of %s did not yield a project and workload", req.Target())
	}

	if !req.DryRun && r.o.deps.Locker != nil {
		lease, err := r.acquire(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(r.msgCtx); err != nil {
				r.logger.Warn("Failed to release workload lock", "error", err)
			}
		}()
	}

	target := dispatch.Target{Workload: *r.facts.Workload, Commit: req.Commit}
	if req.Action == deploytypes.ActionRollback {
		if err := r.enter(ctx, StateResolving); err != nil {
			return err
		}
		rev, err := r.resolve(ctx)
		if err != nil {
			return err
		}
		target.Revision = rev
		r.report.Revision = rev
	}

	if err := r.enter(ctx, StateDispatching); err != nil {
		return err
	}
	if req.Action == deploytypes.ActionDeploy {
		r.progress("All good to deploy :rocket:")
	}
	if req.DryRun {
		return r.complete(dryRunMessage(req, target.Revision))
	}

	accepted, err := r.o.deps.Dispatcher.Dispatch(ctx, req.Action, target)
	r.o.deps.Metrics.ObserveDispatch(string(req.Action), accepted)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("platform did not accept %s on %s", req.Action, req.Target())
	}
	return r.complete(fmt.Sprintf("Executed %s successfully on %s", req.Action, req.Target()))
}

// enter moves to state after checking that the pipeline was not cancelled.
func (r *run) enter(ctx context.Context, state State) error {
	if err := context.Cause(ctx); err != nil {
		return r.cancelled(err)
	}
	r.report.Trail = append(r.report.Trail, state)
	return nil
}

func (r *run) verify(ctx context.Context, step verify.Step) error {
	subject := step.Subject(r.facts)
	r.progress(fmt.Sprintf("Checking if %s exists...", subject))

	start := r.o.deps.Now()
	res, err := step.Check(ctx, r.facts)
	elapsed := r.o.deps.Now().Sub(start)
	if err != nil {
		r.o.deps.Metrics.ObserveStep(step.Name(), "error", elapsed)
		if ctx.Err() != nil {
			return r.cancelled(context.Cause(ctx))
		}
		return fmt.Errorf("checking %s: %w", subject, err)
	}
	if !res.Found {
		r.o.deps.Metrics.ObserveStep(step.Name(), "negative", elapsed)
		return r.abort(
			fmt.Errorf("%w: %s", deploytypes.ErrNotFound, res.Subject),
			fmt.Sprintf("Sorry, I couldn't find your %s", res.Subject),
		)
	}
	r.o.deps.Metrics.ObserveStep(step.Name(), "found", elapsed)
	r.logger.Debug("Verification passed", "step", step.Name(), "subject", res.Subject)
	r.progress(fmt.Sprintf("Found %s", res.Subject))
	return nil
}

func (r *run) acquire(ctx context.Context) (lock.Lease, error) {
	w := r.facts.Workload
	lease, err := r.o.deps.Locker.Acquire(ctx, lock.Key(w.ProjectID, w.ID))
	if errors.Is(err, lock.ErrBusy) {
		return nil, r.abort(err, fmt.Sprintf("Sorry, another operation is running on %s, try again in a moment", r.req.Target()))
	}
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", r.req.Target(), err)
	}
	return lease, nil
}

func (r *run) resolve(ctx context.Context) (*deploytypes.Revision, error) {
	sel := r.req.Rollback
	if sel.Kind == deploytypes.RollbackRevision {
		r.progress(fmt.Sprintf("Checking if Rancher revision %s exists...", sel.Name))
	}
	revisions, err := r.o.deps.Revisions.ListRevisions(ctx, *r.facts.Project, *r.facts.Workload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, r.cancelled(context.Cause(ctx))
		}
		return nil, fmt.Errorf("listing revisions of %s: %w", r.req.Target(), err)
	}
	rev, err := revision.Resolve(sel, revisions)
	if err != nil {
		return nil, r.abort(err, fmt.Sprintf("Sorry, I couldn't find your Rancher revision %s of %s", sel, r.req.Target()))
	}
	r.progress(fmt.Sprintf("Found Rancher revision %s", rev.Name))
	return &rev, nil
}

func (r *run) progress(message string) {
	r.send(r.o.deps.Sink, message, deploytypes.SeverityInfo)
}

func (r *run) send(sink deploytypes.NotificationSink, message string, severity deploytypes.Severity) {
	if sink == nil {
		return
	}
	if err := sink.Notify(r.msgCtx, r.req.Actor, message, severity); err != nil {
		r.logger.Warn("Failed to send message", "severity", string(severity), "error", err)
	}
}

// finish records the terminal state and stops every step still pending.
func (r *run) finish(state State, outcome deploytypes.Outcome, cause error, message string, severity deploytypes.Severity) error {
	r.report.Trail = append(r.report.Trail, state)
	r.report.Outcome = outcome
	r.report.Err = cause
	r.report.Message = message
	if cause == nil {
		r.cancel(errTerminal)
	} else {
		r.cancel(cause)
	}
	if message != "" {
		r.send(r.o.deps.Sink, message, severity)
	}
	return errTerminal
}

func (r *run) complete(message string) error {
	return r.finish(StateCompleted, deploytypes.OutcomeCompleted, nil, message, deploytypes.SeveritySuccess)
}

func (r *run) abort(cause error, message string) error {
	r.logger.Info("Pipeline aborted", "reason", cause)
	return r.finish(StateAborted, deploytypes.OutcomeAborted, cause, message, deploytypes.SeverityError)
}

// deny records the denial. The gate already told the actor, so the message
// only goes into the report.
func (r *run) deny(action string) error {
	r.logger.Warn("Actor not allowed", "actor", r.req.Actor)
	r.report.Trail = append(r.report.Trail, StateDenied)
	r.report.Outcome = deploytypes.OutcomeDenied
	r.report.Message = permission.DeniedMessage(r.req.Actor, action)
	r.report.Err = deploytypes.ErrDenied
	r.cancel(deploytypes.ErrDenied)
	return errTerminal
}

func (r *run) cancelled(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return r.abort(cause, fmt.Sprintf("Cancelled %s on %s", r.req.Action, r.req.Target()))
}

// fail is the single place unexpected errors end up.
func (r *run) fail(err error) {
	if r.report.Outcome != "" && r.report.Outcome != deploytypes.OutcomeCompleted {
		r.logger.Error("Error after terminal state", "outcome", string(r.report.Outcome), "error", err)
		return
	}
	r.logger.Error("Pipeline failed", "error", err)
	msg := fmt.Sprintf("Sorry, I couldn't execute your %s: %v", r.label, err)
	_ = r.finish(StateFailed, deploytypes.OutcomeFailed, err, msg, deploytypes.SeverityError)

	if r.o.deps.Staff != nil {
		commandText := r.req.Text
		if commandText == "" {
			commandText = r.label
		}
		r.send(r.o.deps.Staff, notify.StaffMessage(r.req.Actor, commandText, err, r.o.deps.StaffNames), deploytypes.SeverityError)
	}
}

// validate rejects requests that cannot be run before any collaborator is
// called.
func validate(req deploytypes.DeploymentRequest) error {
	if !req.Action.Valid() {
		return fmt.Errorf("%w: unknown action '%s'", deploytypes.ErrInvalidRequest, req.Action)
	}
	if req.Workload.IsZero() {
		return fmt.Errorf("%w: workload is required", deploytypes.ErrInvalidRequest)
	}
	switch req.Action {
	case deploytypes.ActionDeploy:
		if commit, err := command.NormalizeCommit(req.Commit); err != nil || commit != req.Commit {
			return fmt.Errorf("%w: commit '%s' must be 7 lowercase hex characters", deploytypes.ErrInvalidRequest, req.Commit)
		}
		if _, err := deploytypes.ParseEnvironment(string(req.Environment)); err != nil {
			return err
		}
	case deploytypes.ActionRollback:
		if req.Project.IsZero() {
			return fmt.Errorf("%w: project is required", deploytypes.ErrInvalidRequest)
		}
		return revision.ValidateSelector(req.Rollback)
	default:
		if req.Project.IsZero() {
			return fmt.Errorf("%w: project is required", deploytypes.ErrInvalidRequest)
		}
		if !req.Rollback.IsZero() {
			return fmt.Errorf("%w: %s does not take a revision", deploytypes.ErrInvalidRequest, req.Action)
		}
	}
	return nil
}

func rejectMessage(req deploytypes.DeploymentRequest, err error) string {
	if errors.Is(err, deploytypes.ErrAmbiguousRequest) {
		return fmt.Sprintf("Sorry, your %s request is ambiguous: %v", req.Action, err)
	}
	return fmt.Sprintf("Sorry, I couldn't run your %s request: %v", req.Action, err)
}

func startMessage(req deploytypes.DeploymentRequest) string {
	var to string
	switch req.Action {
	case deploytypes.ActionDeploy:
		to = " to commit " + req.Commit
	case deploytypes.ActionRollback:
		to = " to " + req.Rollback.String()
	}
	suffix := ""
	if req.DryRun {
		suffix = " (dry run)"
	}
	return fmt.Sprintf("*Starting %s operation: %s%s%s...*", req.Action, req.Target(), to, suffix)
}

func dryRunMessage(req deploytypes.DeploymentRequest, rev *deploytypes.Revision) string {
	msg := fmt.Sprintf("Dry run: %s on %s", req.Action, req.Target())
	switch {
	case req.Action == deploytypes.ActionDeploy:
		msg += " with commit " + req.Commit
	case rev != nil:
		msg += " to revision " + rev.Name
	}
	return msg + " would have been executed, nothing was changed"
}
