package visit

// Status is the closed set of visit lifecycle states.
type Status string

const (
	// StatusPending awaits resident approval (walk-ins) or first use of a
	// pre-invite credential.
	StatusPending Status = "pending"
	// StatusApproved means the host has cleared the visit for admission.
	StatusApproved Status = "approved"
	// StatusCheckedIn means the visitor is currently inside the premises.
	StatusCheckedIn Status = "checked_in"
	// StatusCheckedOut is terminal: the visitor has departed.
	StatusCheckedOut Status = "checked_out"
	// StatusCancelled is terminal: host or admin withdrew the visit before arrival.
	StatusCancelled Status = "cancelled"
	// StatusRejected is terminal: the resident declined a walk-in.
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a member of the closed enum.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCheckedIn, StatusCheckedOut, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition is legal out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCheckedOut, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is legal for a visit. Walk-ins
// cannot reach checked_in while still pending; a pre-invite is created
// already implicitly approved by its issuing resident, so its pending form
// may check in directly.
func CanTransition(from, to Status, walkIn bool) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusApproved, StatusRejected, StatusCancelled:
			return true
		case StatusCheckedIn:
			return !walkIn
		}
	case StatusApproved:
		switch to {
		case StatusCheckedIn, StatusCancelled:
			return true
		}
	case StatusCheckedIn:
		return to == StatusCheckedOut
	}
	return false
}
