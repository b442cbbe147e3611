package domain

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	RosterLabel       = "roster"
	rosterMessageType = "roster"
)

// Roster is sent by the host over each participant's roster data channel
// whenever room membership changes.
type Roster struct {
	Type  string   `msgpack:"type"`
	Room  RoomID   `msgpack:"room"`
	Peers []PeerID `msgpack:"peers"`
}

func EncodeRoster(room RoomID, peers []PeerID) ([]byte, error) {
	if peers == nil {
		peers = []PeerID{}
	}
	b, err := msgpack.Marshal(Roster{Type: rosterMessageType, Room: room, Peers: peers})
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	return b, nil
}

func DecodeRoster(data []byte) (Roster, error) {
	var r Roster
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	if r.Type != rosterMessageType {
		return Roster{}, fmt.Errorf("decode roster: unexpected type %q", r.Type)
	}
	return r, nil
}
