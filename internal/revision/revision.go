// Package revision orders workload revisions and picks rollback targets.
package revision

import (
	"fmt"
	"slices"

	"github.com/haloydev/deploybot/internal/deploytypes"
)

// Sort returns a copy of revisions ordered newest first. Revisions with equal
// creation times keep their input order.
func Sort(revisions []deploytypes.Revision) []deploytypes.Revision {
	sorted := slices.Clone(revisions)
	slices.SortStableFunc(sorted, func(a, b deploytypes.Revision) int {
		return b.Created.Compare(a.Created)
	})
	return sorted
}

// ValidateSelector rejects selectors that cannot be resolved without guessing.
// It does no I/O so the pipeline can call it before touching any collaborator.
func ValidateSelector(sel deploytypes.RollbackSelector) error {
	switch sel.Kind {
	case deploytypes.RollbackLatest, deploytypes.RollbackPrevious:
		if sel.Name != "" {
			return fmt.Errorf("%w: '%s' does not take a revision name", deploytypes.ErrAmbiguousRequest, sel.Kind)
		}
		return nil
	case deploytypes.RollbackRevision:
		if sel.Name == "" {
			return fmt.Errorf("%w: the revision keyword needs a revision name", deploytypes.ErrAmbiguousRequest)
		}
		return nil
	case "":
		if sel.Name != "" {
			return fmt.Errorf("%w: use 'revision %s' to roll back to a named revision", deploytypes.ErrAmbiguousRequest, sel.Name)
		}
		return fmt.Errorf("%w: a rollback needs one of 'revision <name>', 'latest' or 'previous'", deploytypes.ErrAmbiguousRequest)
	default:
		return fmt.Errorf("%w: unknown revision selector '%s'", deploytypes.ErrAmbiguousRequest, sel.Kind)
	}
}

// Resolve picks the revision named by sel. The input slice is never modified.
//
// latest and previous index into the newest-first ordering. A named revision is
// the first exact match in the order the platform returned them.
func Resolve(sel deploytypes.RollbackSelector, revisions []deploytypes.Revision) (deploytypes.Revision, error) {
	if err := ValidateSelector(sel); err != nil {
		return deploytypes.Revision{}, err
	}

	switch sel.Kind {
	case deploytypes.RollbackLatest:
		if len(revisions) == 0 {
			return deploytypes.Revision{}, fmt.Errorf("%w: workload has no revisions", deploytypes.ErrNotFound)
		}
		return Sort(revisions)[0], nil
	case deploytypes.RollbackPrevious:
		if len(revisions) < 2 {
			return deploytypes.Revision{}, fmt.Errorf("%w: workload has no previous revision", deploytypes.ErrNotFound)
		}
		return Sort(revisions)[1], nil
	default:
		for _, rev := range revisions {
			if rev.Name == sel.Name {
				return rev, nil
			}
		}
		return deploytypes.Revision{}, fmt.Errorf("%w: revision '%s'", deploytypes.ErrNotFound, sel.Name)
	}
}
