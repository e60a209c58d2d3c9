// Package lifecycle defines the order status vocabulary shared by the
// customer and operator surfaces, and the rules for moving between
// statuses. The server is the arbiter of the current status; this package
// only decides which transitions are worth sending.
package lifecycle

// Status is a server-side order status.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// All lists every status in display order.
var All = []Status{
	StatusPlaced,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is one of the enumerated statuses.
func Valid(s Status) bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusPreparing,
		StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an operator may move an order from one
// status to another. Operators may override freely between non-terminal
// statuses (including jumping backwards), but a no-op write and any exit
// from a terminal status are rejected before reaching the network.
func CanTransition(from, to Status) bool {
	if !Valid(from) || !Valid(to) {
		return false
	}
	if from == to {
		return false
	}
	return !Terminal(from)
}

// CanCancel reports whether a customer may cancel an order. Only orders
// the server has confirmed (hasServerID) can be cancelled, and never out
// of a terminal status.
func CanCancel(hasServerID bool, s Status) bool {
	return hasServerID && Valid(s) && !Terminal(s)
}

// Display maps a status to its human-readable label.
func Display(s Status) string {
	switch s {
	case StatusPlaced:
		return "Placed"
	case StatusConfirmed:
		return "Confirmed"
	case StatusPreparing:
		return "Preparing"
	case StatusReady:
		return "Ready"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}
