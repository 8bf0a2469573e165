package gate

import "errors"

// Failure taxonomy (spec §7). These are never returned to callers of
// Engine.Enforce as Go errors — Enforce always returns a Decision —
// they exist so debug traces and tests can name which condition fired.
// Observe and ObserveResolved do return ErrUnresolved when they drop an
// event because the path could not be resolved.
var (
	// ErrUnresolved: the path-resolution graph walk could not reach the root.
	ErrUnresolved = errors.New("gate: resolver unresolved")
	// ErrConfigMissing: a policy is bound but its mode is absent.
	ErrConfigMissing = errors.New("gate: policy mode missing")
	// ErrCapacityExceeded: a map insert failed because it was at capacity.
	ErrCapacityExceeded = errors.New("gate: map capacity exceeded")
	// ErrLengthCapExceeded: the resolved path exceeds the active length cap.
	ErrLengthCapExceeded = errors.New("gate: path exceeds length cap")
	// ErrReadFault: a simulated kernel structure read failed.
	ErrReadFault = errors.New("gate: read fault")
)

// Decision is the outcome of Engine.Enforce: it is always one of these
// two values, never an error, because the enforcement gate fails open
// unconditionally (spec §7).
type Decision int

const (
	// DecisionAllow corresponds to the hook returning 0.
	DecisionAllow Decision = iota
	// DecisionDeny corresponds to the hook returning EPERM.
	DecisionDeny
)

func (d Decision) String() string {
	if d == DecisionDeny {
		return "deny"
	}
	return "allow"
}

// EPERM is the integer exit code spec §6 names for a denied execution.
const EPERM = 1
