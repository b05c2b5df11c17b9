package analysis

// Run states. The database keeps only running, completed, and failed; the
// stage-done states name the checkpoints between persisted stages.
const (
	StateValidating   = "validating"
	StateRunning      = "running"
	StateDebateDone   = "debate_done"
	StateArbiterDone  = "arbiter_done"
	StateGuidanceDone = "guidance_done"
	StateCompleted    = "completed"
	StateFailed       = "failed"
)

// CanTransition reports whether a run may move between two states. Failed
// is reachable from any live state; completed and failed are terminal.
func CanTransition(fromState, toState string) bool {
	switch fromState {
	case StateValidating:
		return toState == StateRunning || toState == StateFailed
	case StateRunning:
		return toState == StateDebateDone || toState == StateFailed
	case StateDebateDone:
		return toState == StateArbiterDone || toState == StateFailed
	case StateArbiterDone:
		return toState == StateGuidanceDone || toState == StateFailed
	case StateGuidanceDone:
		return toState == StateCompleted || toState == StateFailed
	case StateCompleted, StateFailed:
		return false
	default:
		return false
	}
}
