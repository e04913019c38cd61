// Package mcp exposes the note engine to AI clients over the Model
// Context Protocol. Five tools cover the read path: search_notes,
// query_notes, person_context, action_items, and index_status. The
// server speaks stdio, the transport MCP clients spawn locally.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/noterag/noterag/internal/noteerr"
)

// MCP error codes. The -32xxx range is JSON-RPC; the -3200x values are
// ours.
const (
	// ErrCodeBackendUnavailable means Ollama or the chat gateway did
	// not respond.
	ErrCodeBackendUnavailable = -32001

	// ErrCodeTimeout means the request deadline passed or the client
	// cancelled.
	ErrCodeTimeout = -32002

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an invalid-params error with a custom
// message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts an engine error to a protocol error. Input
// problems keep their message so the client can fix the call; internal
// failures are masked.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var me *MCPError
	if errors.As(err, &me) {
		return me
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was cancelled."}
	case noteerr.IsMalformedInput(err):
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	case noteerr.IsTransient(err):
		return &MCPError{Code: ErrCodeBackendUnavailable, Message: err.Error()}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
