package domain

// RideAction names an operation that moves a ride between statuses.
type RideAction string

const (
	RideActionAccept       RideAction = "ACCEPT"
	RideActionCancel       RideAction = "CANCEL"
	RideActionPickUp       RideAction = "PICK_UP"
	RideActionStartTransit RideAction = "START_TRANSIT"
	RideActionComplete     RideAction = "COMPLETE"
)

// Transition is a single edge of the ride state machine.
type Transition struct {
	From RideStatus
	To   RideStatus
}

// rideTransitions is the complete ride state machine. Any status/action pair
// not listed here is rejected.
var rideTransitions = map[RideAction]Transition{
	RideActionAccept:       {From: RideStatusRequested, To: RideStatusAccepted},
	RideActionCancel:       {From: RideStatusRequested, To: RideStatusCancelled},
	RideActionPickUp:       {From: RideStatusAccepted, To: RideStatusPickedUp},
	RideActionStartTransit: {From: RideStatusPickedUp, To: RideStatusInTransit},
	RideActionComplete:     {From: RideStatusInTransit, To: RideStatusCompleted},
}

// TransitionFor returns the edge for an action.
func TransitionFor(action RideAction) (Transition, bool) {
	t, ok := rideTransitions[action]
	return t, ok
}

// CanTransition reports whether the action is allowed from the given status.
func CanTransition(from RideStatus, action RideAction) bool {
	t, ok := rideTransitions[action]
	return ok && t.From == from
}

// RequiresDriver reports whether only the bound driver (or an admin) may
// perform the action.
func (a RideAction) RequiresDriver() bool {
	return a != RideActionCancel
}
