package entity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind identifies a user-initiated transaction.
type ActionKind string

const (
	ActionApprove          ActionKind = "approve"
	ActionDeposit          ActionKind = "deposit"
	ActionDepositAndBorrow ActionKind = "deposit_and_borrow"
)

// PendingAction is the in-flight transaction, if any. At most one exists.
type PendingAction struct {
	Kind      ActionKind
	Asset     string
	TxHash    common.Hash
	StartedAt time.Time
}
