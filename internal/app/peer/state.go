package peer

type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

func (r Role) String() string {
	switch r {
	case RoleLocal:
		return "local"
	case RoleRemote:
		return "remote"
	default:
		return "unknown"
	}
}

type State int

const (
	StateNew State = iota
	StateNegotiating
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateConnected
	StateDisconnected
	StateClosed
)

var stateNames = [...]string{
	StateNew:           "new",
	StateNegotiating:   "negotiating",
	StateOfferSent:     "offer_sent",
	StateOfferReceived: "offer_received",
	StateAnswerSent:    "answer_sent",
	StateConnected:     "connected",
	StateDisconnected:  "disconnected",
	StateClosed:        "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateClosed
}

// rank orders states along the negotiation path. A Peer only moves forward.
func (s State) rank() int {
	switch s {
	case StateNew:
		return 0
	case StateNegotiating, StateOfferReceived:
		return 1
	case StateOfferSent, StateAnswerSent:
		return 2
	case StateConnected:
		return 3
	default:
		return 4
	}
}
