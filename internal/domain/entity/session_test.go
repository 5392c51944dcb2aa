package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSession_Persisted(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	s := Session{State: StateConnected, ChainID: 10, Address: addr}
	p := s.Persisted()
	if !p.Connected || p.ChainID != 10 || p.Address != addr.Hex() {
		t.Errorf("Persisted = %+v", p)
	}
	if DisconnectedSession(1).Persisted().Connected {
		t.Error("disconnected session must not persist as connected")
	}
}

func TestState_String(t *testing.T) {
	if StateConnecting.String() != "connecting" || State(42).String() != "unknown" {
		t.Error("unexpected State.String output")
	}
}

func TestAddressEllipsis(t *testing.T) {
	tests := []struct {
		in     string
		length int
		want   string
	}{
		{"", 4, ""},
		{"0x1234567890abcdef1234567890abcdef12345678", 4, "0x1234...5678"},
		{"1234567890abcdef", 4, "0x1234...cdef"},
		{"0x1234", 4, "0x1234"},
	}
	for _, tt := range tests {
		if got := AddressEllipsis(tt.in, tt.length); got != tt.want {
			t.Errorf("AddressEllipsis(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWalletError_Is(t *testing.T) {
	unknown := fmt.Errorf("switch: %w", &WalletError{Code: WalletCodeUnknownChain, Message: "Unrecognized chain ID"})
	if !errors.Is(unknown, ErrUnknownChain) {
		t.Error("4902 must match ErrUnknownChain")
	}
	if errors.Is(unknown, ErrUserRejected) {
		t.Error("4902 must not match ErrUserRejected")
	}
	rejected := &WalletError{Code: WalletCodeUserRejected, Message: "User rejected"}
	if !errors.Is(rejected, ErrUserRejected) {
		t.Error("4001 must match ErrUserRejected")
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := &UnsupportedChainError{ChainID: 9999}
	err := error(&ConnectionError{Op: "connect", Err: cause})

	var unsupported *UnsupportedChainError
	if !errors.As(err, &unsupported) || unsupported.ChainID != 9999 {
		t.Errorf("errors.As UnsupportedChainError failed for %v", err)
	}

	tf := &TransactionFailure{Action: ActionApprove, Err: ErrUserRejected}
	if !errors.Is(tf, ErrUserRejected) {
		t.Error("TransactionFailure must unwrap")
	}
	if got := tf.Error(); got != "approve transaction failed: user rejected the request" {
		t.Errorf("Error() = %q", got)
	}

	rf := &ReadFailure{Op: "positions", Err: errors.New("boom")}
	if rf.Error() != "read positions: boom" {
		t.Errorf("ReadFailure.Error() = %q", rf.Error())
	}
}
