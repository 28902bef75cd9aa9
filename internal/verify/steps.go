package verify

import (
	"context"
	"fmt"

	"github.com/distribution/reference"
	"github.com/haloydev/deploybot/internal/deploytypes"
)

// SourceRepository checks the repository a deploy builds from. The
// repository is named after the workload unless Names maps it elsewhere.
type SourceRepository struct {
	Source deploytypes.SourceControl
	Names  map[string]string
}

func (s SourceRepository) Name() string { return "source repository" }

func (s SourceRepository) repository(facts *Facts) string {
	workload := facts.Request.Workload.Value
	if name, ok := s.Names[workload]; ok && name != "" {
		return name
	}
	return workload
}

func (s SourceRepository) Subject(facts *Facts) string {
	return "repository " + s.repository(facts)
}

func (s SourceRepository) Check(ctx context.Context, facts *Facts) (Result, error) {
	repo, err := s.Source.CheckRepository(ctx, s.repository(facts))
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: repo != nil, Subject: s.Subject(facts)}
	if repo != nil {
		facts.Repository = repo
		res.Entity = repo
	}
	return res, nil
}

// Commit checks that the commit exists in the verified source repository.
type Commit struct {
	Source deploytypes.SourceControl
}

func (s Commit) Name() string { return "commit" }

func (s Commit) Subject(facts *Facts) string {
	if facts.Repository == nil {
		return "commit " + facts.Request.Commit
	}
	return fmt.Sprintf("commit %s in repository %s", facts.Request.Commit, facts.Repository.Name)
}

func (s Commit) Check(ctx context.Context, facts *Facts) (Result, error) {
	if facts.Repository == nil {
		return Result{}, errMissingFact(s.Name(), "repository")
	}
	cm, err := s.Source.CheckCommit(ctx, facts.Repository.Name, facts.Request.Commit)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: cm != nil, Subject: s.Subject(facts)}
	if cm != nil {
		facts.Commit = cm
		res.Entity = cm
	}
	return res, nil
}

// Project checks the target project. A deploy selects the project by name
// from its environment, through Environments when configured; the other
// actions use the project id from the request.
type Project struct {
	Platform     deploytypes.OrchestrationPlatform
	Environments map[deploytypes.Environment]string
}

func (s Project) Name() string { return "project" }

func (s Project) selector(facts *Facts) deploytypes.Selector {
	req := facts.Request
	if req.Action != deploytypes.ActionDeploy {
		return req.Project
	}
	if name, ok := s.Environments[req.Environment]; ok && name != "" {
		return deploytypes.ByName(name)
	}
	return deploytypes.ByName(string(req.Environment))
}

func (s Project) Subject(facts *Facts) string {
	return "Rancher project " + s.selector(facts).Value
}

func (s Project) Check(ctx context.Context, facts *Facts) (Result, error) {
	project, err := s.Platform.CheckProject(ctx, s.selector(facts))
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: project != nil, Subject: s.Subject(facts)}
	if project != nil {
		facts.Project = project
		res.Entity = project
	}
	return res, nil
}

// Workload checks the target workload inside the verified project.
type Workload struct {
	Platform deploytypes.OrchestrationPlatform
}

func (s Workload) Name() string { return "workload" }

func (s Workload) Subject(facts *Facts) string {
	if facts.Project == nil {
		return "workload " + facts.Request.Workload.Value
	}
	return fmt.Sprintf("workload %s in project %s", facts.Request.Workload.Value, facts.Project.ID)
}

func (s Workload) Check(ctx context.Context, facts *Facts) (Result, error) {
	if facts.Project == nil {
		return Result{}, errMissingFact(s.Name(), "project")
	}
	workload, err := s.Platform.CheckWorkload(ctx, *facts.Project, facts.Request.Workload)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: workload != nil, Subject: s.Subject(facts)}
	if workload != nil {
		facts.Workload = workload
		res.Entity = workload
	}
	return res, nil
}

// ImageRepositoryPath returns the repository path of an image reference,
// without registry host, tag or digest.
func ImageRepositoryPath(image string) (string, error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference '%s': %w", image, err)
	}
	return reference.Path(named), nil
}

// RegistryRepository checks the registry repository of the first container
// image of the verified workload.
type RegistryRepository struct {
	Registry deploytypes.ImageRegistry
}

func (s RegistryRepository) Name() string { return "registry repository" }

func (s RegistryRepository) path(facts *Facts) string {
	if facts.Workload == nil || len(facts.Workload.Containers) == 0 {
		return ""
	}
	path, err := ImageRepositoryPath(facts.Workload.Containers[0].Image)
	if err != nil {
		return ""
	}
	return path
}

func (s RegistryRepository) Subject(facts *Facts) string {
	if path := s.path(facts); path != "" {
		return "image repository " + path
	}
	return "image repository of workload " + facts.Request.Workload.Value
}

func (s RegistryRepository) Check(ctx context.Context, facts *Facts) (Result, error) {
	if facts.Workload == nil {
		return Result{}, errMissingFact(s.Name(), "workload")
	}
	path := s.path(facts)
	if path == "" {
		return Result{Subject: s.Subject(facts)}, nil
	}
	repo, err := s.Registry.CheckRepository(ctx, path)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: repo != nil, Subject: s.Subject(facts)}
	if repo != nil {
		facts.ImageRepository = repo
		res.Entity = repo
	}
	return res, nil
}

// ImageTag checks that the registry holds an image tagged with the commit.
type ImageTag struct {
	Registry deploytypes.ImageRegistry
}

func (s ImageTag) Name() string { return "image tag" }

func (s ImageTag) Subject(facts *Facts) string {
	if facts.ImageRepository == nil {
		return "image " + facts.Request.Commit
	}
	return fmt.Sprintf("image %s:%s", facts.ImageRepository.Path(), facts.Request.Commit)
}

func (s ImageTag) Check(ctx context.Context, facts *Facts) (Result, error) {
	if facts.ImageRepository == nil {
		return Result{}, errMissingFact(s.Name(), "image repository")
	}
	tags, err := s.Registry.CheckImage(ctx, facts.ImageRepository.Path(), facts.Request.Commit)
	if err != nil {
		return Result{}, err
	}
	res := Result{Found: len(tags) > 0, Subject: s.Subject(facts)}
	if len(tags) > 0 {
		res.Entity = tags
	}
	return res, nil
}
