package verify

import (
	"fmt"

	"github.com/haloydev/deploybot/internal/deploytypes"
)

// Catalog builds the ordered checks for an action from the configured
// collaborators.
type Catalog struct {
	Source       deploytypes.SourceControl
	Registry     deploytypes.ImageRegistry
	Platform     deploytypes.OrchestrationPlatform
	Repositories map[string]string
	Environments map[deploytypes.Environment]string
}

// Plan returns the checks for action in the order they must run. It fails
// with ErrMisconfigured when a collaborator the action needs is missing.
func (c Catalog) Plan(action deploytypes.Action) ([]Step, error) {
	if c.Platform == nil {
		return nil, fmt.Errorf("%w: no orchestration platform configured", deploytypes.ErrMisconfigured)
	}

	switch action {
	case deploytypes.ActionDeploy:
		if c.Source == nil {
			return nil, fmt.Errorf("%w: deploy needs a source control service", deploytypes.ErrMisconfigured)
		}
		if c.Registry == nil {
			return nil, fmt.Errorf("%w: deploy needs an image registry", deploytypes.ErrMisconfigured)
		}
		return []Step{
			SourceRepository{Source: c.Source, Names: c.Repositories},
			Commit{Source: c.Source},
			Project{Platform: c.Platform, Environments: c.Environments},
			Workload{Platform: c.Platform},
			RegistryRepository{Registry: c.Registry},
			ImageTag{Registry: c.Registry},
		}, nil
	case deploytypes.ActionRollback, deploytypes.ActionPause, deploytypes.ActionResume:
		return []Step{
			Project{Platform: c.Platform, Environments: c.Environments},
			Workload{Platform: c.Platform},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action '%s'", deploytypes.ErrInvalidRequest, action)
	}
}
