// Package tracker implements the application pipeline state machine
// and the service that persists transitions.
//
// Status graph:
//
//	new ──► interested ──► applied ──► interview ──► offer
//	 │           │             │            │          │
//	 ├───────────┴─────────────┴────────────┴──────────┴──► rejected
//	 └──────────────────────────────────────────────────────► withdrawn
//
// Moves between non-terminal states are free: transitions are explicit
// user actions and the tracker does not second-guess ordering. The
// machine enforces only that a same-state move is a no-op, that every
// genuine transition lands in history, and that rejected and withdrawn
// have no outgoing transitions at all, including into the other
// terminal state (rejected and withdrawn cannot reach each other).
// Leaving a terminal state takes an explicit, separately-logged Reopen
// back to interested.
package tracker

import "jobhunt/internal/model"

// IsTerminal reports whether status has no outgoing transitions.
func IsTerminal(s model.ApplicationStatus) bool {
	return s == model.StatusRejected || s == model.StatusWithdrawn
}

// IsTransitionAllowed returns true when moving from one status to
// another is permitted by the state machine.
func IsTransitionAllowed(from, to model.ApplicationStatus) bool {
	if IsTerminal(from) {
		return false
	}
	return from != to
}
