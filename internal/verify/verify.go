// Package verify holds the checks that run before an action is dispatched.
package verify

import (
	"context"
	"fmt"

	"github.com/haloydev/deploybot/internal/deploytypes"
)

// Facts carries the request and every entity verified so far. Each step reads
// what earlier steps stored and adds its own entity when found.
type Facts struct {
	Request         deploytypes.DeploymentRequest
	Repository      *deploytypes.Repository
	Commit          *deploytypes.Commit
	Project         *deploytypes.Project
	Workload        *deploytypes.Workload
	ImageRepository *deploytypes.ImageRepository
}

// Result is the answer of one check. A negative result is not an error.
type Result struct {
	Found   bool
	Subject string
	Entity  any
}

type Step interface {
	Name() string
	// Subject names what the step looks for, for progress messages.
	Subject(facts *Facts) string
	Check(ctx context.Context, facts *Facts) (Result, error)
}

func errMissingFact(step, fact string) error {
	return fmt.Errorf("%s step needs a verified %s", step, fact)
}
