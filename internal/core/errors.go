package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicehost/internal/domain"
)

var (
	ErrTransport        = errors.New("transport error")
	ErrMalformedMessage = errors.New("malformed message")
	ErrDuplicateChannel = errors.New("duplicate data channel")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrMediaAcquisition = errors.New("media acquisition failed")
	ErrClosed           = errors.New("peer closed")
	ErrInvalidState     = errors.New("invalid negotiation state")
)

// OpError records which operation failed for which peer.
type OpError struct {
	Op   string
	Peer domain.PeerID
	Err  error
}

func (e *OpError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func NewOpError(op string, peer domain.PeerID, err error) *OpError {
	return &OpError{Op: op, Peer: peer, Err: err}
}
