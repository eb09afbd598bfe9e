package engine

import (
	"fmt"
	"strings"
)

// SaveMode selects the commit strategy.
type SaveMode int

const (
	// SaveModeDefault resolves to SaveModeTwoPhases.
	SaveModeDefault SaveMode = iota
	SaveModeItem
	SaveModeBatch
	SaveModeTwoPhases
)

func (m SaveMode) String() string {
	switch m {
	case SaveModeDefault:
		return "Default"
	case SaveModeItem:
		return "Item"
	case SaveModeBatch:
		return "Batch"
	case SaveModeTwoPhases:
		return "TwoPhases"
	default:
		return fmt.Sprintf("SaveMode(%d)", int(m))
	}
}

// ParseSaveMode parses a save mode name, case-insensitively.
// The empty string is SaveModeDefault.
func ParseSaveMode(s string) (SaveMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return SaveModeDefault, nil
	case "item", "byitem", "by-item":
		return SaveModeItem, nil
	case "batch":
		return SaveModeBatch, nil
	case "twophases", "two-phases", "2phases":
		return SaveModeTwoPhases, nil
	default:
		return SaveModeDefault, NewValidationError(fmt.Sprintf("unsupported save mode %q", s))
	}
}

// Phase is a state of the commit state machine.
//
//	NotStarted -> Previewed                                  (dry run)
//	NotStarted -> Phase1Submitted -> IdsRemapped
//	           -> DeletesApplied -> Phase2Submitted -> Done  (apply)
//
// Batch mode has no first phase. It goes from NotStarted to DeletesApplied,
// through RecycleStarted when it has delete or restore calls to make.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhasePreviewed
	PhasePhase1Submitted
	PhaseIdsRemapped
	PhaseRecycleStarted
	PhaseDeletesApplied
	PhasePhase2Submitted
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NotStarted"
	case PhasePreviewed:
		return "Previewed"
	case PhasePhase1Submitted:
		return "Phase1Submitted"
	case PhaseIdsRemapped:
		return "IdsRemapped"
	case PhaseRecycleStarted:
		return "RecycleStarted"
	case PhaseDeletesApplied:
		return "DeletesApplied"
	case PhasePhase2Submitted:
		return "Phase2Submitted"
	case PhaseDone:
		return "Done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
