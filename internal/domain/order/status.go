package order

import "fmt"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// AllStatuses lists every order status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the known order statuses.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0 && s.IsValid()
}

// transitions is the fixed order lifecycle policy. Transitions are directed
// and one-way: no status has a path back to draft, and cancelled/refunded
// are terminal. The table is built once at init and never mutated.
var transitions = map[Status]map[Status]struct{}{
	StatusDraft:      statusSet(StatusPending, StatusCancelled),
	StatusPending:    statusSet(StatusConfirmed, StatusCancelled),
	StatusConfirmed:  statusSet(StatusProcessing, StatusCancelled),
	StatusProcessing: statusSet(StatusShipped, StatusCancelled),
	StatusShipped:    statusSet(StatusDelivered),
	StatusDelivered:  statusSet(StatusRefunded),
	StatusCancelled:  statusSet(),
	StatusRefunded:   statusSet(),
}

func statusSet(ss ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

// InvalidTransitionError indicates a requested status change that is not in
// the allowed-next set for the current status. It carries both statuses so
// callers can build a user-facing message.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// CanTransition reports whether target is directly reachable from current.
// Unknown statuses have no allowed targets.
func CanTransition(current, target Status) bool {
	allowed, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[target]
	return ok
}

// Transition validates the requested status change and returns the new
// status. It never auto-advances: every change is a single explicit request
// validated against the table. On a disallowed change it returns an
// *InvalidTransitionError carrying (current, target).
func Transition(current, target Status) (Status, error) {
	if !CanTransition(current, target) {
		return current, &InvalidTransitionError{From: current, To: target}
	}
	return target, nil
}

// NextStatuses returns the set of statuses directly reachable from current,
// in lifecycle order. Terminal and unknown statuses return nil.
func NextStatuses(current Status) []Status {
	allowed := transitions[current]
	if len(allowed) == 0 {
		return nil
	}
	next := make([]Status, 0, len(allowed))
	for _, s := range AllStatuses {
		if _, ok := allowed[s]; ok {
			next = append(next, s)
		}
	}
	return next
}
