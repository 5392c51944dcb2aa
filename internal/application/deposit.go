package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain"
	"github.com/archon-research/lendkit/internal/ports/inbound"
)

// Action is what submitting the deposit form does next.
type Action int

const (
	ActionNone Action = iota
	ActionConnect
	ActionApprove
	ActionDeposit
	ActionDepositAndBorrow
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "Connect Wallet"
	case ActionApprove:
		return "Approve"
	case ActionDeposit:
		return "Deposit"
	case ActionDepositAndBorrow:
		return "Deposit & Borrow"
	default:
		return "none"
	}
}

// Problem is one reason the form cannot be submitted as is.
type Problem string

const (
	ProblemNotConnected        Problem = "wallet not connected"
	ProblemPending             Problem = "a transaction is pending"
	ProblemNoAsset             Problem = "no deposit asset selected"
	ProblemInvalidAmount       Problem = "deposit amount is invalid"
	ProblemZeroAmount          Problem = "deposit amount is zero"
	ProblemInsufficientBalance Problem = "insufficient balance"
	ProblemNeedsApproval       Problem = "allowance below deposit amount"
	ProblemNoStrategy          Problem = "no yield strategy selected"
	ProblemInvalidLoan         Problem = "loan amount is invalid"
	ProblemZeroLoan            Problem = "loan amount is zero"
	ProblemLoanExceedsLimit    Problem = "loan exceeds maximum mintable amount"
)

// DepositForm is what the user entered.
type DepositForm struct {
	Asset  string
	Amount string
	// StrategyIndex selects among Strategies(Asset); negative means none.
	StrategyIndex int
	// Borrow mints LoanAmount of the loan asset in the same transaction.
	// Ignored for the native asset, which is deposit only.
	Borrow     bool
	LoanAmount string
}

// DepositCheck is the outcome of validating a DepositForm.
type DepositCheck struct {
	Action   Action
	Problems []Problem

	Asset         entity.UnderlyingAsset
	Strategy      entity.YieldStrategy
	Info          entity.TokenInfo
	DepositAmount *big.Int
	LoanAmount    *big.Int
	// MaxBorrow is in the deposit asset's base units.
	MaxBorrow *big.Int
}

// Ready reports whether Action can be executed.
func (c DepositCheck) Ready() bool {
	if c.Action == ActionNone {
		return false
	}
	for _, p := range c.Problems {
		if blocking(c.Action, p) {
			return false
		}
	}
	return true
}

func blocking(action Action, p Problem) bool {
	switch p {
	case ProblemNotConnected:
		return action != ActionConnect
	case ProblemNeedsApproval:
		return action != ActionApprove
	default:
		return true
	}
}

// Label is the submit button text.
func (c DepositCheck) Label() string {
	switch {
	case c.has(ProblemPending):
		return "Pending..."
	case c.Action == ActionConnect:
		return ActionConnect.String()
	case c.has(ProblemInsufficientBalance):
		return "Insufficient Balance"
	case c.Action == ActionApprove:
		return "Approve " + c.Asset.Symbol
	case c.has(ProblemLoanExceedsLimit):
		return "Exceed Maximum Mintable Amount"
	case c.Action == ActionNone:
		return "Deposit"
	default:
		return c.Action.String()
	}
}

func (c DepositCheck) has(p Problem) bool {
	for _, q := range c.Problems {
		if q == p {
			return true
		}
	}
	return false
}

// ValidationError reports why a form was not submitted.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = string(p)
	}
	return "deposit form invalid: " + strings.Join(msgs, ", ")
}

// ValidateDeposit checks form against the chain and decides the next
// action. Read failures are returned as errors; user mistakes are reported
// as Problems.
func (a *LendingApp) ValidateDeposit(ctx context.Context, form DepositForm) (DepositCheck, error) {
	var check DepositCheck
	if _, pending := a.tx.Pending(); pending {
		check.Problems = append(check.Problems, ProblemPending)
	}
	if !a.conn.Session().Connected() {
		check.Action = ActionConnect
		check.Problems = append(check.Problems, ProblemNotConnected)
		return check, nil
	}

	if form.Asset == "" {
		check.Problems = append(check.Problems, ProblemNoAsset)
		return check, nil
	}
	asset, _, err := a.asset(ctx, form.Asset)
	if err != nil {
		return check, err
	}
	check.Asset = asset

	amount, err := blockchain.ParseAmount(form.Amount, asset.Decimals)
	switch {
	case errors.Is(err, blockchain.ErrEmptyAmount):
		check.Problems = append(check.Problems, ProblemZeroAmount)
		return check, nil
	case err != nil:
		check.Problems = append(check.Problems, ProblemInvalidAmount)
		return check, nil
	case amount.IsZero():
		check.Problems = append(check.Problems, ProblemZeroAmount)
		return check, nil
	}
	check.DepositAmount = amount.Shift(asset.Decimals).BigInt()

	info, err := a.TokenInfo(ctx, asset.Symbol)
	if err != nil {
		return check, err
	}
	check.Info = info
	if amount.GreaterThan(blockchain.ToDecimal(info.Balance, asset.Decimals)) {
		check.Problems = append(check.Problems, ProblemInsufficientBalance)
		return check, nil
	}
	if amount.GreaterThan(blockchain.ToDecimal(info.Allowance, asset.Decimals)) {
		check.Action = ActionApprove
		check.Problems = append(check.Problems, ProblemNeedsApproval)
		return check, nil
	}

	if form.StrategyIndex < 0 {
		check.Problems = append(check.Problems, ProblemNoStrategy)
	} else {
		strategy, err := a.Strategy(ctx, asset.Symbol, form.StrategyIndex)
		if err != nil {
			check.Problems = append(check.Problems, ProblemNoStrategy)
		} else {
			check.Strategy = strategy
		}
	}

	if !form.Borrow || asset.Native {
		if len(check.Problems) == 0 {
			check.Action = ActionDeposit
		}
		return check, nil
	}

	limit, err := a.maxBorrowFor(ctx, asset, check.DepositAmount)
	if err != nil {
		return check, err
	}
	check.MaxBorrow = limit
	check.Problems = append(check.Problems, loanProblems(form.LoanAmount, limit, asset)...)
	if loan, err := blockchain.ParseUnits(form.LoanAmount, entity.LoanDecimals); err == nil {
		check.LoanAmount = loan
	}
	if len(check.Problems) == 0 {
		check.Action = ActionDepositAndBorrow
	}
	return check, nil
}

func loanProblems(loanAmount string, limit *big.Int, asset entity.UnderlyingAsset) []Problem {
	loan, err := blockchain.ParseAmount(loanAmount, entity.LoanDecimals)
	switch {
	case errors.Is(err, blockchain.ErrEmptyAmount):
		return []Problem{ProblemZeroLoan}
	case err != nil:
		return []Problem{ProblemInvalidLoan}
	case loan.IsZero():
		return []Problem{ProblemZeroLoan}
	case loan.GreaterThan(blockchain.ToDecimal(limit, asset.Decimals)):
		return []Problem{ProblemLoanExceedsLimit}
	}
	return nil
}

// FormatMaxBorrow renders a borrow limit the way the loan field shows it.
func FormatMaxBorrow(limit *big.Int, asset entity.UnderlyingAsset) string {
	return blockchain.FormatUnits(limit, asset.Decimals)
}

// Submit validates form and executes the resulting action. Connecting
// returns a nil transaction.
func (a *LendingApp) Submit(ctx context.Context, form DepositForm) (inbound.PendingTransaction, DepositCheck, error) {
	check, err := a.ValidateDeposit(ctx, form)
	if err != nil {
		return nil, check, err
	}
	if !check.Ready() {
		return nil, check, &ValidationError{Problems: check.Problems}
	}

	if check.Action == ActionConnect {
		_, err := a.conn.Connect(ctx, a.conn.Session().ChainID)
		return nil, check, err
	}

	provider, _, err := a.active()
	if err != nil {
		return nil, check, err
	}

	var tx inbound.PendingTransaction
	switch check.Action {
	case ActionApprove:
		tx, err = a.tx.Approve(ctx, check.Asset, check.DepositAmount, provider)
	case ActionDeposit:
		tx, err = a.tx.DepositUnderlying(ctx, check.Asset, check.Strategy.Token, check.DepositAmount, provider)
	case ActionDepositAndBorrow:
		tx, err = a.tx.DepositAndBorrow(ctx, check.Asset, check.Strategy.Token, check.DepositAmount, check.LoanAmount, provider)
	default:
		err = fmt.Errorf("unexpected action %v", check.Action)
	}
	if err != nil {
		return nil, check, err
	}
	a.logger.Info("submitted", "action", check.Action, "asset", check.Asset.Symbol, "tx", tx.Hash().Hex())
	return tx, check, nil
}

