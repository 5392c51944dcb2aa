package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/retry"
	"github.com/archon-research/lendkit/internal/testutil"
)

func fastConfig() Config {
	return Config{
		RateLimit:   rate.Inf,
		RateBurst:   1,
		DialTimeout: 2 * time.Second,
		Retry:       retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
}

func chainIDHandler(id string) testutil.RPCHandler {
	return func(json.RawMessage) (interface{}, error) { return id, nil }
}

func TestDialer_PicksFirstEndpointWithMatchingChain(t *testing.T) {
	wrong := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{"eth_chainId": chainIDHandler("0xa")})
	right := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{"eth_chainId": chainIDHandler("0x1")})

	d := NewDialer(fastConfig(), nil)
	reader, err := d.Dial(context.Background(), entity.Chain{ChainID: 1, Name: "Ethereum", RPCURLs: []string{wrong.URL, right.URL}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer reader.Close()

	client := reader.(*Client)
	if client.URL() != right.URL {
		t.Errorf("bound to %s, want %s", client.URL(), right.URL)
	}
}

func TestDialer_AllEndpointsFail(t *testing.T) {
	wrong := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{"eth_chainId": chainIDHandler("0xa")})

	d := NewDialer(fastConfig(), nil)
	_, err := d.Dial(context.Background(), entity.Chain{ChainID: 1, Name: "Ethereum", RPCURLs: []string{wrong.URL}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no usable RPC endpoint for Ethereum") || !strings.Contains(err.Error(), "serves chain 10") {
		t.Errorf("error = %v", err)
	}

	if _, err := d.Dial(context.Background(), entity.Chain{ChainID: 1}); err == nil {
		t.Error("expected error for a chain without URLs")
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	srv := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{
		"eth_chainId": chainIDHandler("0x1"),
		"eth_getBalance": func(json.RawMessage) (interface{}, error) {
			attempts++
			if attempts < 3 {
				return nil, &testutil.RPCError{Code: -32005, Message: "limit exceeded"}
			}
			return "0x2a", nil
		},
	})

	rpcClient, err := rpc.Dial(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(rpcClient, srv.URL, fastConfig(), nil)
	defer client.Close()

	balance, err := client.BalanceAt(context.Background(), common.HexToAddress("0x01"), nil)
	if err != nil {
		t.Fatalf("BalanceAt: %v", err)
	}
	if balance.Int64() != 42 {
		t.Errorf("balance = %s, want 42", balance)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestClient_DoesNotRetryReverts(t *testing.T) {
	srv := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{
		"eth_call": func(json.RawMessage) (interface{}, error) {
			return nil, &testutil.RPCError{Code: 3, Message: "execution reverted"}
		},
	})
	rpcClient, err := rpc.Dial(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(rpcClient, srv.URL, fastConfig(), nil)
	defer client.Close()

	to := common.HexToAddress("0x01")
	if _, err := client.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil); err == nil {
		t.Fatal("expected revert error")
	}
	if got := srv.Count("eth_call"); got != 1 {
		t.Errorf("eth_call count = %d, want 1", got)
	}
}

func TestClient_ReceiptNotFound(t *testing.T) {
	srv := testutil.StartRPCServer(t, map[string]testutil.RPCHandler{
		"eth_getTransactionReceipt": func(json.RawMessage) (interface{}, error) { return nil, nil },
	})
	rpcClient, err := rpc.Dial(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(rpcClient, srv.URL, fastConfig(), nil)
	defer client.Close()

	_, err = client.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	if !errors.Is(err, ethereum.NotFound) {
		t.Errorf("err = %v, want ethereum.NotFound", err)
	}
	if got := srv.Count("eth_getTransactionReceipt"); got != 1 {
		t.Errorf("NotFound must not be retried, calls = %d", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ethereum.NotFound, false},
		{"canceled", context.Canceled, false},
		{"http 429", rpc.HTTPError{StatusCode: 429}, true},
		{"http 503", rpc.HTTPError{StatusCode: 503}, true},
		{"http 400", rpc.HTTPError{StatusCode: 400}, false},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"wrapped refused", fmt.Errorf("call: %w", errors.New("connection reset by peer")), true},
		{"revert", errors.New("execution reverted"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
