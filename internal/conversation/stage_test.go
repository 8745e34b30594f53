package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

func TestValidateTransition(t *testing.T) {
	const (
		gathering  = models.StageGatheringRequirements
		codegen    = models.StageCodeGeneration
		refinement = models.StageRefinementTesting
	)

	tests := []struct {
		name      string
		from      models.Stage
		to        models.Stage
		force     bool
		wantError bool
	}{
		{"gathering self loop", gathering, gathering, false, false},
		{"gathering to code generation", gathering, codegen, false, false},
		{"code generation to refinement", codegen, refinement, false, false},
		{"refinement self loop", refinement, refinement, false, false},
		{"gathering to refinement needs force", gathering, refinement, false, true},
		{"gathering to refinement forced", gathering, refinement, true, false},
		{"refinement back to code generation forced", refinement, codegen, true, false},
		{"code generation back to gathering", codegen, gathering, false, true},
		{"code generation back to gathering forced", codegen, gathering, true, true},
		{"refinement back to gathering forced", refinement, gathering, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to, tt.force)
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidTransitionError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.from, invalid.From)
			assert.Equal(t, tt.to, invalid.To)
		})
	}
}

func TestValidateTransition_ReturnToGatheringMessage(t *testing.T) {
	err := ValidateTransition(models.StageCodeGeneration, models.StageGatheringRequirements, true)
	var invalid *InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "Cannot return to requirements gathering stage", invalid.Reason)
}

func TestValidateTransition_UnknownStage(t *testing.T) {
	err := ValidateTransition(models.StageGatheringRequirements, models.Stage("deployment"), true)
	assert.ErrorIs(t, err, ErrInvalidStage)

	err = ValidateTransition(models.Stage("bogus"), models.StageCodeGeneration, false)
	assert.ErrorIs(t, err, ErrInvalidStage)
}
