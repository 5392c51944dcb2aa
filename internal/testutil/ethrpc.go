package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// RPCError is returned by an RPCHandler to answer with a JSON-RPC error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// RPCHandler answers one JSON-RPC method. The result is JSON-encoded.
type RPCHandler func(params json.RawMessage) (interface{}, error)

// RPCServer is a JSON-RPC node fake with per-method handlers.
type RPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	counts   map[string]int
}

// StartRPCServer starts a JSON-RPC server answering the given methods and
// replying "method not found" to everything else.
func StartRPCServer(t *testing.T, handlers map[string]RPCHandler) *RPCServer {
	t.Helper()
	s := &RPCServer{handlers: make(map[string]RPCHandler), counts: make(map[string]int)}
	for m, h := range handlers {
		s.handlers[m] = h
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle installs or replaces the handler for method.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Count returns how often method was called.
func (s *RPCServer) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method]
}

func (s *RPCServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
		return
	}

	s.mu.Lock()
	s.counts[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()
	if !ok {
		WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
		return
	}

	result, err := h(req.Params)
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			WriteRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		WriteRPCError(w, req.ID, -32000, err.Error())
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		WriteRPCError(w, req.ID, -32603, err.Error())
		return
	}
	WriteRPCResult(w, req.ID, resultJSON)
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	errJSON, _ := json.Marshal(map[string]interface{}{"code": code, "message": message})
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}
