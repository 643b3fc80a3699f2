package eventgroup

// State is a subscription state.
type State uint8

const (
	NotSubscribed State = iota
	SubscriptionPending
	Subscribed
	SubscriptionRenewal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotSubscribed:
		return "NotSubscribed"
	case SubscriptionPending:
		return "SubscriptionPending"
	case Subscribed:
		return "Subscribed"
	case SubscriptionRenewal:
		return "SubscriptionRenewal"
	default:
		return "UNKNOWN"
	}
}

// Status returns the externally visible subscription status. Renewal
// keeps delivering events and is reported as subscribed.
func (s State) Status() Status {
	switch s {
	case SubscriptionPending:
		return StatusPending
	case Subscribed, SubscriptionRenewal:
		return StatusSubscribed
	default:
		return StatusNotSubscribed
	}
}

// IsValidChange reports whether from may change to to.
func IsValidChange(from, to State) bool {
	switch from {
	case NotSubscribed:
		return to == SubscriptionPending
	case SubscriptionPending:
		return to == NotSubscribed || to == Subscribed
	case Subscribed:
		return to == NotSubscribed || to == SubscriptionPending || to == SubscriptionRenewal
	case SubscriptionRenewal:
		return to == NotSubscribed || to == SubscriptionPending || to == Subscribed
	default:
		return false
	}
}

// Status is the subscription status reported to observers.
type Status uint8

const (
	StatusNotSubscribed Status = iota
	StatusPending
	StatusSubscribed
)

func (s Status) String() string {
	switch s {
	case StatusNotSubscribed:
		return "not_subscribed"
	case StatusPending:
		return "pending"
	case StatusSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}
