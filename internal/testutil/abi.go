package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DecodeCall splits calldata into the named method and its arguments.
func DecodeCall(t *testing.T, contract *abi.ABI, data []byte) (string, []interface{}) {
	t.Helper()
	if len(data) < 4 {
		t.Fatalf("calldata too short: %x", data)
	}
	m, err := contract.MethodById(data[:4])
	if err != nil {
		t.Fatalf("unknown selector %x: %v", data[:4], err)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack %s: %v", m.Name, err)
	}
	return m.Name, args
}
