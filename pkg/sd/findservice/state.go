package findservice

// State is a FindService phase.
type State uint8

const (
	// DownPhase is entered while the network is down or the service is not
	// requested.
	DownPhase State = iota
	// InitialWaitPhase waits a random delay before the first FindService.
	InitialWaitPhase
	// RepetitionPhase repeats FindService with exponential backoff.
	RepetitionPhase
	// MainPhase waits passively for offers.
	MainPhase
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case DownPhase:
		return "DownPhase"
	case InitialWaitPhase:
		return "InitialWaitPhase"
	case RepetitionPhase:
		return "RepetitionPhase"
	case MainPhase:
		return "MainPhase"
	default:
		return "UNKNOWN"
	}
}

// IsValidChange reports whether from may change to to.
func IsValidChange(from, to State) bool {
	switch from {
	case DownPhase:
		return to == InitialWaitPhase || to == MainPhase
	case InitialWaitPhase:
		return to == DownPhase || to == RepetitionPhase || to == MainPhase
	case RepetitionPhase:
		return to == DownPhase || to == MainPhase
	case MainPhase:
		return to == DownPhase || to == InitialWaitPhase
	default:
		return false
	}
}
