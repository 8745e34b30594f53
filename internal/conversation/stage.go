package conversation

import (
	"errors"
	"fmt"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// ErrInvalidStage is returned for a stage value outside the workflow
var ErrInvalidStage = errors.New("invalid stage")

// InvalidTransitionError reports a rejected stage transition
type InvalidTransitionError struct {
	From   models.Stage
	To     models.Stage
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition from %s to %s: %s", e.From, e.To, e.Reason)
}

var stageTransitions = map[models.Stage][]models.Stage{
	models.StageGatheringRequirements: {models.StageGatheringRequirements, models.StageCodeGeneration},
	models.StageCodeGeneration:        {models.StageCodeGeneration, models.StageRefinementTesting},
	models.StageRefinementTesting:     {models.StageRefinementTesting},
}

// CanTransition reports whether to is reachable from from without forcing
func CanTransition(from, to models.Stage) bool {
	for _, allowed := range stageTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks a requested move. Matrix edges always pass; other
// forward moves pass only when forced. Returning to requirements gathering
// from a later stage is never allowed.
func ValidateTransition(from, to models.Stage, force bool) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStage, to)
	}

	if to == models.StageGatheringRequirements && from != models.StageGatheringRequirements {
		return &InvalidTransitionError{From: from, To: to, Reason: "Cannot return to requirements gathering stage"}
	}
	if CanTransition(from, to) || force {
		return nil
	}
	return &InvalidTransitionError{
		From:   from,
		To:     to,
		Reason: fmt.Sprintf("Cannot move from %s to %s without force", from, to),
	}
}

// ReachableStages lists the stages from can move to without forcing,
// itself included
func ReachableStages(from models.Stage) []models.Stage {
	return append([]models.Stage(nil), stageTransitions[from]...)
}
