package borrow_capacity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain/abis"
	"github.com/archon-research/lendkit/internal/testutil"
)

var (
	user = common.HexToAddress("0x000000000000000000000000000000000000beef")
	yvA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	yvB  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return c
}

func mainnet(t *testing.T) entity.Chain {
	t.Helper()
	c, _ := entity.DefaultRegistry().Get(entity.ChainEthereum)
	return c
}

func asset(t *testing.T, symbol string) entity.UnderlyingAsset {
	t.Helper()
	a, ok := entity.LookupAsset(symbol)
	if !ok {
		t.Fatalf("unknown asset %s", symbol)
	}
	return a
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func yieldParams(active, harvestable, totalShares int64) abis.YieldTokenParams {
	return abis.YieldTokenParams{
		Decimals:              6,
		MaximumLoss:           big.NewInt(0),
		MaximumExpectedValue:  big.NewInt(0),
		CreditUnlockRate:      big.NewInt(0),
		ActiveBalance:         big.NewInt(active),
		HarvestableBalance:    big.NewInt(harvestable),
		TotalShares:           big.NewInt(totalShares),
		ExpectedValue:         big.NewInt(0),
		PendingCredit:         big.NewInt(0),
		DistributedCredit:     big.NewInt(0),
		LastDistributionBlock: big.NewInt(0),
		AccruedWeight:         big.NewInt(0),
		Enabled:               true,
	}
}

type protocolState struct {
	ratio  *big.Int
	debt   *big.Int
	tokens []common.Address
	params map[common.Address]abis.YieldTokenParams
	shares map[common.Address]int64
}

func install(t *testing.T, fc *testutil.FakeChain, alchemist common.Address, st *protocolState) {
	t.Helper()
	fc.OnAlchemist(alchemist, "minimumCollateralization", func([]interface{}) ([]interface{}, error) {
		return []interface{}{st.ratio}, nil
	})
	fc.OnAlchemist(alchemist, "accounts", func(args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) != user {
			return []interface{}{big.NewInt(0), []common.Address{}}, nil
		}
		return []interface{}{st.debt, st.tokens}, nil
	})
	fc.OnAlchemist(alchemist, "getYieldTokenParameters", func(args []interface{}) ([]interface{}, error) {
		p, ok := st.params[args[0].(common.Address)]
		if !ok {
			return nil, errors.New("execution reverted: unsupported")
		}
		return []interface{}{p}, nil
	})
	fc.OnAlchemist(alchemist, "positions", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(st.shares[args[1].(common.Address)]), big.NewInt(0)}, nil
	})
}

func TestMaxBorrow_NoPositions(t *testing.T) {
	tests := []struct {
		name    string
		deposit *big.Int
		ratio   *big.Int
		want    *big.Int
	}{
		{"100 USDC at 200%", big.NewInt(100_000_000), e18(2), big.NewInt(50_000_000)},
		{"floor division", big.NewInt(7), e18(3), big.NewInt(2)},
		{"ratio 1.5", big.NewInt(300), big.NewInt(15e17), big.NewInt(200)},
		{"zero deposit", big.NewInt(0), e18(2), big.NewInt(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := mainnet(t)
			fc := testutil.NewFakeChain(t, entity.ChainEthereum)
			install(t, fc, chain.Contracts.Alchemist, &protocolState{ratio: tt.ratio, debt: big.NewInt(0)})

			got := newCalculator(t).ComputeMaxBorrow(context.Background(), asset(t, "USDC"), tt.deposit, user, chain, fc)
			if got.Cmp(tt.want) != 0 {
				t.Errorf("max borrow = %s, want %s", got, tt.want)
			}
			if n := fc.CallCount("getYieldTokenParameters"); n != 0 {
				t.Errorf("params read %d times with no positions", n)
			}
		})
	}
}

func TestMaxBorrow_WithPositions(t *testing.T) {
	tests := []struct {
		name string
		debt *big.Int
		want int64
	}{
		// (900×150/300) + (500×50/100) + 300 = 1000; ×1e18/2e18 = 500
		{"no debt", big.NewInt(0), 500},
		{"debt subtracted", big.NewInt(100), 400},
		{"credit adds", big.NewInt(-20), 520},
		{"debt above capacity clamps to zero", big.NewInt(10_000), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := mainnet(t)
			fc := testutil.NewFakeChain(t, entity.ChainEthereum)
			install(t, fc, chain.Contracts.Alchemist, &protocolState{
				ratio:  e18(2),
				debt:   tt.debt,
				tokens: []common.Address{yvA, yvB},
				params: map[common.Address]abis.YieldTokenParams{
					yvA: yieldParams(1000, 100, 300),
					yvB: yieldParams(500, 0, 100),
				},
				shares: map[common.Address]int64{yvA: 150, yvB: 50},
			})

			got := newCalculator(t).ComputeMaxBorrow(context.Background(), asset(t, "DAI"), big.NewInt(300), user, chain, fc)
			if got.Int64() != tt.want {
				t.Errorf("max borrow = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestMaxBorrow_DirectFallback(t *testing.T) {
	chain := mainnet(t)
	fc := testutil.NewFakeChain(t, entity.ChainEthereum)
	fc.MulticallDisabled = true
	install(t, fc, chain.Contracts.Alchemist, &protocolState{
		ratio:  e18(2),
		debt:   big.NewInt(0),
		tokens: []common.Address{yvA},
		params: map[common.Address]abis.YieldTokenParams{yvA: yieldParams(100, 0, 100)},
		shares: map[common.Address]int64{yvA: 100},
	})

	got := newCalculator(t).ComputeMaxBorrow(context.Background(), asset(t, "DAI"), big.NewInt(0), user, chain, fc)
	if got.Int64() != 50 {
		t.Errorf("max borrow = %s, want 50", got)
	}
}

func TestMaxBorrow_WETHUsesETHContract(t *testing.T) {
	chain := mainnet(t)
	fc := testutil.NewFakeChain(t, entity.ChainEthereum)
	install(t, fc, chain.Contracts.AlchemistETH, &protocolState{ratio: e18(2), debt: big.NewInt(0)})

	got := newCalculator(t).ComputeMaxBorrow(context.Background(), asset(t, "ETH"), e18(1), user, chain, fc)
	if got.Cmp(new(big.Int).Div(e18(1), big.NewInt(2))) != 0 {
		t.Errorf("max borrow = %s, want 0.5e18", got)
	}
}

func TestMaxBorrow_FailureReturnsLastValue(t *testing.T) {
	chain := mainnet(t)
	fc := testutil.NewFakeChain(t, entity.ChainEthereum)
	st := &protocolState{
		ratio:  e18(2),
		debt:   big.NewInt(0),
		tokens: []common.Address{yvA},
		params: map[common.Address]abis.YieldTokenParams{yvA: yieldParams(100, 0, 100)},
		shares: map[common.Address]int64{yvA: 100},
	}
	install(t, fc, chain.Contracts.Alchemist, st)

	calc := newCalculator(t)
	ctx := context.Background()
	dai := asset(t, "DAI")

	first := calc.ComputeMaxBorrow(ctx, dai, big.NewInt(100), user, chain, fc)
	if first.Int64() != 100 {
		t.Fatalf("first = %s, want 100", first)
	}

	st.params[yvA] = yieldParams(100, 0, 0)
	if got := calc.ComputeMaxBorrow(ctx, dai, big.NewInt(500), user, chain, fc); got.Int64() != 100 {
		t.Errorf("zero total shares: got %s, want previous 100", got)
	}

	st.ratio = big.NewInt(0)
	st.params[yvA] = yieldParams(100, 0, 100)
	if got := calc.ComputeMaxBorrow(ctx, dai, big.NewInt(500), user, chain, fc); got.Int64() != 100 {
		t.Errorf("zero ratio: got %s, want previous 100", got)
	}

	fc.CallErr = errors.New("rpc down")
	if got := calc.ComputeMaxBorrow(ctx, dai, big.NewInt(500), user, chain, fc); got.Int64() != 100 {
		t.Errorf("rpc failure: got %s, want previous 100", got)
	}

	calc.Reset()
	if got := calc.ComputeMaxBorrow(ctx, dai, big.NewInt(500), user, chain, fc); got.Sign() != 0 {
		t.Errorf("after reset: got %s, want 0", got)
	}
}

func TestMaxBorrow_ResultIsACopy(t *testing.T) {
	chain := mainnet(t)
	fc := testutil.NewFakeChain(t, entity.ChainEthereum)
	install(t, fc, chain.Contracts.Alchemist, &protocolState{ratio: e18(1), debt: big.NewInt(0)})

	calc := newCalculator(t)
	got := calc.ComputeMaxBorrow(context.Background(), asset(t, "DAI"), big.NewInt(10), user, chain, fc)
	got.SetInt64(999)
	if calc.Last().Int64() != 10 {
		t.Errorf("Last = %s, want 10", calc.Last())
	}
}

func TestMaxBorrowFormula(t *testing.T) {
	got := MaxBorrow(big.NewInt(10), e18(4), nil)
	if got.Int64() != 2 {
		t.Errorf("MaxBorrow = %s, want 2", got)
	}
}
