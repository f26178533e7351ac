package a2a

import (
	"encoding/json"
	"fmt"
)

const (
	JSONRPCVersion = "2.0"
	MethodSend     = "message/send"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type SendParams struct {
	Message Message `json:"message"`
}

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return "a2a rpc error"
	}
	return fmt.Sprintf("a2a rpc error %d: %s", e.Code, e.Message)
}

// ResultKind peeks at the "kind" discriminator of a result payload.
func ResultKind(raw json.RawMessage) (string, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", err
	}
	return probe.Kind, nil
}
