package clients

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcHandler answers one JSON-RPC method with a result or an error.
type rpcHandler func(params json.RawMessage) (any, *rpcError)

// rpcStub is a JSON-RPC 2.0 endpoint serving a fixed set of methods.
type rpcStub struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

func newRPCStub(t *testing.T, handlers map[string]rpcHandler) *rpcStub {
	t.Helper()
	stub := &rpcStub{calls: make(map[string]int)}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stub.mu.Lock()
		stub.calls[req.Method]++
		stub.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		h, ok := handlers[req.Method]
		if !ok {
			resp["error"] = rpcError{Code: -32601, Message: "method not found: " + req.Method}
		} else if result, rerr := h(req.Params); rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *rpcStub) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func result(v any) rpcHandler {
	return func(json.RawMessage) (any, *rpcError) { return v, nil }
}
