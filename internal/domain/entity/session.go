package entity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is the single live wallet session. A disconnected session carries
// no address; a connected one carries the address and the chain the wallet
// reported when the provider was bound.
type Session struct {
	State   State
	ChainID int64
	Address common.Address
}

// Connected reports whether the session is fully connected.
func (s Session) Connected() bool {
	return s.State == StateConnected
}

// DisconnectedSession is the zero session. The chain is kept so the UI can
// show which network a reconnect will target.
func DisconnectedSession(chainID int64) Session {
	return Session{State: StateDisconnected, ChainID: chainID}
}

// PersistedSession is what survives a restart.
type PersistedSession struct {
	ChainID   int64
	Address   string
	Connected bool
}

// Persisted returns the durable projection of s.
func (s Session) Persisted() PersistedSession {
	return PersistedSession{
		ChainID:   s.ChainID,
		Address:   s.Address.Hex(),
		Connected: s.Connected(),
	}
}

// AddressEllipsis shortens an address for display, e.g. 0x1234...abcd.
func AddressEllipsis(address string, length int) string {
	if address == "" {
		return ""
	}
	if length <= 0 {
		length = 4
	}
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	if len(address) <= length*2+2 {
		return address
	}
	return address[:length+2] + "..." + address[len(address)-length:]
}
