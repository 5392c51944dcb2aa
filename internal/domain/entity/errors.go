package entity

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 / EIP-3326 provider error codes.
const (
	WalletCodeUserRejected = 4001
	WalletCodeUnauthorized = 4100
	WalletCodeUnknownChain = 4902
)

var (
	// ErrUserRejected is returned when the user declines a wallet prompt.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrWalletUnavailable is returned when no wallet connector can be reached.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrUnknownChain is the wallet's answer to a switch to a chain it has never seen.
	ErrUnknownChain = errors.New("chain not added to wallet")
	// ErrNoCachedSession is returned by silent connects when no wallet was cached.
	ErrNoCachedSession = errors.New("no cached wallet session")
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrConnectInProgress is returned when connect is called while connecting.
	ErrConnectInProgress = errors.New("connection already in progress")
	// ErrActionPending is returned while another transaction awaits confirmation.
	ErrActionPending = errors.New("another transaction is pending")
	// ErrNativeBorrowUnsupported is returned for deposit-and-borrow of the native asset.
	ErrNativeBorrowUnsupported = errors.New("borrowing against a native deposit is not supported")
	// ErrApprovalNotRequired is returned when approving the native asset.
	ErrApprovalNotRequired = errors.New("native asset needs no approval")
	// ErrUnknownAsset is returned for symbols missing from the catalog.
	ErrUnknownAsset = errors.New("unknown asset")
)

// WalletError is an error reported by the wallet over its request interface.
type WalletError struct {
	Code    int
	Message string
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Is maps well-known provider codes onto the sentinel errors.
func (e *WalletError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Code == WalletCodeUserRejected
	case ErrUnknownChain:
		return e.Code == WalletCodeUnknownChain
	}
	return false
}

// ConnectionError aborts a connect or chain switch. The session is back in
// the disconnected state when it is returned.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedChainError reports a wallet chain missing from the registry.
type UnsupportedChainError struct {
	ChainID int64
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("chain %d is not supported", e.ChainID)
}

// ReadFailure wraps a failed contract read or derived-math failure. Callers
// log it and fall back to a zero or empty value.
type ReadFailure struct {
	Op  string
	Err error
}

func (e *ReadFailure) Error() string {
	return fmt.Sprintf("read %s: %v", e.Op, e.Err)
}

func (e *ReadFailure) Unwrap() error { return e.Err }

// TransactionFailure reports a transaction that could not be sent, reverted
// or did not confirm.
type TransactionFailure struct {
	Action ActionKind
	TxHash common.Hash
	Err    error
}

func (e *TransactionFailure) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("%s transaction failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s transaction %s failed: %v", e.Action, e.TxHash.Hex(), e.Err)
}

func (e *TransactionFailure) Unwrap() error { return e.Err }
