package service

// Phase is where an orchestrator is in its cycle.
type Phase string

// Orchestrator phases. Halted is terminal. Paused replaces idle while
// polling is paused.
const (
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseIdle          Phase = "idle"
	PhasePaused        Phase = "paused"
	PhasePolling       Phase = "polling"
	PhaseApplying      Phase = "applying"
	PhaseRecomputing   Phase = "recomputing"
	PhaseCaching       Phase = "caching"
	PhaseStopped       Phase = "stopped"
	PhaseHalted        Phase = "halted"
)
