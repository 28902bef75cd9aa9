// Package dispatch turns a verified request into a platform call.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/jinzhu/copier"
)

// Target is everything the platform call needs. Revision is set for
// rollbacks and Commit for deploys.
type Target struct {
	Workload deploytypes.Workload
	Revision *deploytypes.Revision
	Commit   string
}

type Dispatcher struct {
	Platform deploytypes.OrchestrationPlatform
}

func New(platform deploytypes.OrchestrationPlatform) *Dispatcher {
	return &Dispatcher{Platform: platform}
}

// Dispatch executes action against the target workload and reports whether
// the platform accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, action deploytypes.Action, target Target) (bool, error) {
	if d.Platform == nil {
		return false, fmt.Errorf("%w: no orchestration platform configured", deploytypes.ErrMisconfigured)
	}
	payload, err := Payload(action, target)
	if err != nil {
		return false, err
	}
	return d.Platform.PerformAction(ctx, action, target.Workload, payload)
}

// Payload builds the request body for action. Pause and resume carry none.
func Payload(action deploytypes.Action, target Target) (any, error) {
	switch action {
	case deploytypes.ActionDeploy:
		containers, err := deployContainers(target.Workload.Containers, target.Commit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"containers": containers}, nil
	case deploytypes.ActionRollback:
		if target.Revision == nil || target.Revision.ID == "" {
			return nil, fmt.Errorf("%w: rollback needs a resolved revision", deploytypes.ErrInvalidRequest)
		}
		return map[string]any{"replicaSetId": target.Revision.ID}, nil
	case deploytypes.ActionPause, deploytypes.ActionResume:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown action '%s'", deploytypes.ErrInvalidRequest, action)
	}
}

// deployContainers copies every container spec and points the first one at
// the commit tag. Only the first container is retagged; workloads running
// several images from the same commit need one deploy per workload.
func deployContainers(containers []deploytypes.Container, commit string) ([]map[string]any, error) {
	if commit == "" {
		return nil, fmt.Errorf("%w: deploy needs a commit", deploytypes.ErrInvalidRequest)
	}
	if len(containers) == 0 {
		return nil, fmt.Errorf("%w: workload has no containers", deploytypes.ErrInvalidRequest)
	}

	var copied []deploytypes.Container
	if err := copier.CopyWithOption(&copied, &containers, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy containers: %w", err)
	}

	image, err := ReplaceTag(copied[0].Image, commit)
	if err != nil {
		return nil, err
	}
	copied[0].Image = image

	specs := make([]map[string]any, 0, len(copied))
	for _, c := range copied {
		spec := c.Spec
		if spec == nil {
			spec = map[string]any{}
			if c.Name != "" {
				spec["name"] = c.Name
			}
		}
		spec["image"] = c.Image
		specs = append(specs, spec)
	}
	return specs, nil
}

// ReplaceTag swaps the tag of an image reference and keeps everything before
// it byte for byte. A digest is dropped and an untagged image gets the tag
// appended.
func ReplaceTag(image, tag string) (string, error) {
	if image == "" {
		return "", fmt.Errorf("%w: container has no image", deploytypes.ErrInvalidRequest)
	}
	if at := strings.Index(image, "@"); at >= 0 {
		image = image[:at]
	}
	nameStart := strings.LastIndex(image, "/") + 1
	if colon := strings.LastIndex(image[nameStart:], ":"); colon >= 0 {
		image = image[:nameStart+colon]
	}
	return image + ":" + tag, nil
}
