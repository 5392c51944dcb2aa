package multicall

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/ports/outbound"
)

func TestFallback_DegradesToDirectCalls(t *testing.T) {
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	var batched, direct int
	caller := &fakeCaller{callFn: func(msg ethereum.CallMsg) ([]byte, error) {
		if *msg.To == Multicall3Address {
			batched++
			return nil, errors.New("no contract code")
		}
		direct++
		return append([]byte{0x01}, msg.Data...), nil
	}}

	f, err := NewFallback(caller, nil)
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	if f.Address() != Multicall3Address {
		t.Errorf("Address = %s before degrading", f.Address().Hex())
	}

	calls := []outbound.Call{
		{Target: target, CallData: []byte{0xaa}},
		{Target: target, CallData: []byte{0xbb}},
	}
	for round := 0; round < 2; round++ {
		results, err := f.Execute(context.Background(), calls, nil)
		if err != nil {
			t.Fatalf("round %d: Execute: %v", round, err)
		}
		if len(results) != 2 || !results[1].Success || !bytes.Equal(results[1].ReturnData, []byte{0x01, 0xbb}) {
			t.Fatalf("round %d: results = %+v", round, results)
		}
	}

	if batched != 1 {
		t.Errorf("multicall attempts = %d, want 1", batched)
	}
	if direct != 4 {
		t.Errorf("direct calls = %d, want 4", direct)
	}
	if f.Address() != (common.Address{}) {
		t.Errorf("Address = %s after degrading, want zero", f.Address().Hex())
	}
}

func TestFallback_DirectFailurePropagates(t *testing.T) {
	caller := &fakeCaller{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	f, err := NewFallback(caller, nil)
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	_, err = f.Execute(context.Background(), []outbound.Call{{Target: common.HexToAddress("0x01"), CallData: []byte{1}}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}
