package story

// Stage is one step of a pipeline run.
type Stage int

const (
	// StageStart is the entry point of every run
	StageStart Stage = iota
	// StageSafety classifies the user input
	StageSafety
	// StageRetrieval augments the story context with lore
	StageRetrieval
	// StageGenerate asks the generation backend for a continuation
	StageGenerate
	// StageFallback answers rejected input with a canned redirect
	StageFallback
	// StageEnd terminates the run
	StageEnd
)

// String returns the stage name used in logs and metric labels
func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageSafety:
		return "safety"
	case StageRetrieval:
		return "retrieval"
	case StageGenerate:
		return "generate"
	case StageFallback:
		return "fallback"
	case StageEnd:
		return "end"
	default:
		return "unknown"
	}
}

// next returns the stage that follows s given the state after s ran.
func (s Stage) next(state *State) Stage {
	switch s {
	case StageStart:
		return StageSafety
	case StageSafety:
		if state.SafetyPassed {
			return StageRetrieval
		}
		return StageFallback
	case StageRetrieval:
		return StageGenerate
	default:
		return StageEnd
	}
}
