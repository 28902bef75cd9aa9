package deploytypes

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionDeploy   Action = "deploy"
	ActionRollback Action = "rollback"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
)

func (a Action) Valid() bool {
	switch a {
	case ActionDeploy, ActionRollback, ActionPause, ActionResume:
		return true
	}
	return false
}

type Environment string

const (
	EnvironmentStaging    Environment = "Staging"
	EnvironmentProduction Environment = "Production"
)

// ParseEnvironment matches the environment token case-insensitively and returns
// its canonical spelling.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(s) {
	case "staging":
		return EnvironmentStaging, nil
	case "production":
		return EnvironmentProduction, nil
	}
	return "", fmt.Errorf("%w: unknown environment '%s' (expected Staging or Production)", ErrInvalidRequest, s)
}

// Selector identifies a platform entity by one of its fields.
type Selector struct {
	Field string
	Value string
}

const (
	FieldID   = "id"
	FieldName = "name"
)

func ByID(v string) Selector   { return Selector{Field: FieldID, Value: v} }
func ByName(v string) Selector { return Selector{Field: FieldName, Value: v} }

func (s Selector) String() string {
	return s.Value
}

func (s Selector) IsZero() bool {
	return s.Value == ""
}

type RollbackKind string

const (
	RollbackRevision RollbackKind = "revision"
	RollbackLatest   RollbackKind = "latest"
	RollbackPrevious RollbackKind = "previous"
)

// RollbackSelector picks the revision a rollback goes back to. Name is only
// meaningful together with RollbackRevision.
type RollbackSelector struct {
	Kind RollbackKind
	Name string
}

func (s RollbackSelector) IsZero() bool {
	return s.Kind == "" && s.Name == ""
}

func (s RollbackSelector) String() string {
	if s.Kind == RollbackRevision {
		return s.Name
	}
	if s.Kind == "" {
		return s.Name
	}
	return string(s.Kind)
}

// DeploymentRequest is built once by the command parser and passed by value.
type DeploymentRequest struct {
	ID          string
	Actor       string
	Action      Action
	Environment Environment
	Project     Selector
	Workload    Selector
	Commit      string
	Rollback    RollbackSelector
	DryRun      bool
	Text        string
}

// Target describes the request target in messages.
func (r DeploymentRequest) Target() string {
	if r.Action == ActionDeploy {
		return fmt.Sprintf("workload %s in %s", r.Workload, r.Environment)
	}
	return fmt.Sprintf("workload %s at project %s", r.Workload, r.Project)
}

type Project struct {
	ID    string
	Name  string
	State string
}

type Container struct {
	Name  string
	Image string
	// Spec holds every container field as returned by the platform, Image included.
	Spec map[string]any
}

type Workload struct {
	ProjectID   string
	ID          string
	Name        string
	NamespaceID string
	Type        string
	Containers  []Container
}

type Revision struct {
	ID          string
	Name        string
	Created     time.Time
	Image       string
	NamespaceID string
}

// AgeDays is the whole number of days between the revision creation and now.
func (r Revision) AgeDays(now time.Time) int {
	return int(now.Sub(r.Created).Hours() / 24)
}

type Repository struct {
	ID          string
	Name        string
	FullName    string
	URL         string
	Description string
	Private     bool
	OpenIssues  int
}

type Commit struct {
	SHA     string
	Message string
	Author  string
	Email   string
	Date    time.Time
	URL     string
}

type ImageRepository struct {
	Namespace   string
	Name        string
	Description string
	Public      bool
}

func (r ImageRepository) Path() string {
	if r.Namespace == "" {
		return r.Name
	}
	return r.Namespace + "/" + r.Name
}

type ImageTag struct {
	Name           string
	ManifestDigest string
	LastModified   string
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "Completed"
	OutcomeAborted   Outcome = "Aborted"
	OutcomeDenied    Outcome = "Denied"
	OutcomeFailed    Outcome = "Failed"
)

// SourceControl checks that a repository and a commit exist.
// A missing entity is reported as (nil, nil).
type SourceControl interface {
	CheckRepository(ctx context.Context, name string) (*Repository, error)
	CheckCommit(ctx context.Context, repo, sha string) (*Commit, error)
}

// ImageRegistry checks that an image repository and a tag exist. An empty tag
// list means the tag was not found.
type ImageRegistry interface {
	CheckRepository(ctx context.Context, name string) (*ImageRepository, error)
	CheckImage(ctx context.Context, repo, tag string) ([]ImageTag, error)
}

// OrchestrationPlatform is the cluster-management API workloads are deployed on.
type OrchestrationPlatform interface {
	CheckProject(ctx context.Context, sel Selector) (*Project, error)
	CheckWorkload(ctx context.Context, project Project, sel Selector) (*Workload, error)
	ListRevisions(ctx context.Context, project Project, workload Workload) ([]Revision, error)
	PerformAction(ctx context.Context, action Action, workload Workload, payload any) (bool, error)
}

// NotificationSink delivers messages to the actor.
type NotificationSink interface {
	Notify(ctx context.Context, actor, message string, severity Severity) error
}
