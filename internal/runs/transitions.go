package runs

import (
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
)

// Action names a run lifecycle operation.
type Action string

const (
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionArrive   Action = "arrive"
	ActionDepart   Action = "depart"
	ActionTask     Action = "task_completed"
	ActionAssign   Action = "assign"
	ActionMerge    Action = "merge"
)

// Actor is the already-authenticated caller. Whether the caller may act on
// runs at all is decided upstream; the role only selects the rule below.
type Actor struct {
	UserID int64
	Role   enums.ActorRole
}

func (a Actor) isDispatcher() bool {
	return a.Role.CanDispatch()
}

type transition struct {
	from []enums.RunStatus
	// to is empty for stop-level actions that keep the run status.
	to     enums.RunStatus
	reason string
}

var transitions = map[Action]transition{
	ActionStart: {
		from:   []enums.RunStatus{enums.RunStatusPending},
		to:     enums.RunStatusInProgress,
		reason: "run not pending",
	},
	ActionComplete: {
		from:   []enums.RunStatus{enums.RunStatusInProgress},
		to:     enums.RunStatusCompleted,
		reason: "run not in progress",
	},
	ActionCancel: {
		from:   []enums.RunStatus{enums.RunStatusPending, enums.RunStatusInProgress},
		to:     enums.RunStatusCanceled,
		reason: "run not pending",
	},
	ActionArrive: {
		from:   []enums.RunStatus{enums.RunStatusInProgress},
		reason: "run not in progress",
	},
	ActionDepart: {
		from:   []enums.RunStatus{enums.RunStatusInProgress},
		reason: "run not in progress",
	},
	ActionTask: {
		from:   []enums.RunStatus{enums.RunStatusInProgress},
		reason: "run not in progress",
	},
	ActionAssign: {
		from:   []enums.RunStatus{enums.RunStatusPending, enums.RunStatusInProgress},
		reason: "run already finished",
	},
}

// runnerCancelFrom narrows cancel for the assigned runner.
var runnerCancelFrom = []enums.RunStatus{enums.RunStatusPending}

func statusIn(status enums.RunStatus, set []enums.RunStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// authorize applies the per-action actor rule. Start and complete belong to
// the assigned runner alone; stop actions accept the runner or a dispatcher;
// cancel accepts a dispatcher, or the runner while pending.
func authorize(action Action, actor Actor, runnerID *int64) error {
	assigned := runnerID != nil && *runnerID == actor.UserID && actor.UserID != 0
	switch action {
	case ActionStart, ActionComplete:
		if !assigned {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not assigned runner")
		}
	case ActionCancel, ActionArrive, ActionDepart, ActionTask:
		if !assigned && !actor.isDispatcher() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not assigned runner")
		}
	case ActionAssign, ActionMerge:
		if !actor.isDispatcher() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
		}
	}
	return nil
}

// allowedFrom returns the statuses the action may leave for this actor.
func allowedFrom(action Action, actor Actor) []enums.RunStatus {
	if action == ActionCancel && !actor.isDispatcher() {
		return runnerCancelFrom
	}
	return transitions[action].from
}

// checkTransition rejects the action when the actor or the current status
// does not permit it. Actor checks come first.
func checkTransition(action Action, actor Actor, status enums.RunStatus, runnerID *int64) error {
	if err := authorize(action, actor, runnerID); err != nil {
		return err
	}
	if status.IsTerminal() {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "run already %s", status)
	}
	if !statusIn(status, allowedFrom(action, actor)) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, transitions[action].reason)
	}
	return nil
}
