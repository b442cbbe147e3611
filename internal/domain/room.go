package domain

type (
	RoomID string
	PeerID string
)

// Room is the host-owned grouping of participants, identified by the
// relay-assigned id.
type Room struct {
	ID    RoomID   `json:"room"`
	Peers []PeerID `json:"peers"`
}
