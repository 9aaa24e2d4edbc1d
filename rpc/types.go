// Package rpc exposes blockchain and protocol state via a JSON-RPC 2.0 HTTP
// endpoint.
package rpc

import (
	"encoding/json"

	"github.com/tolelom/procrastichain/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object. Protocol failures use the
// protocol's own code (400-412) and carry the symbol in Data.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// errFromErr maps protocol errors to their stable code and everything else
// to an internal error.
func errFromErr(id any, err error) Response {
	if pe, ok := core.AsProtocolError(err); ok {
		return Response{
			JSONRPC: "2.0",
			ID:      id,
			Error: &Error{
				Code:    int(pe.Code),
				Message: err.Error(),
				Data:    map[string]string{"symbol": pe.Symbol, "category": string(pe.Category)},
			},
		}
	}
	return errResponse(id, CodeInternalError, err.Error())
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
