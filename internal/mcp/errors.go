// Package mcp exposes Trenton's index and search operations as Model Context
// Protocol tools, so agents can find similar media and drive indexing.
package mcp

import (
	"context"
	"errors"
	"fmt"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
)

// Custom MCP error codes for Trenton.
const (
	// ErrCodeEmbedderUnavailable indicates no embedder can serve the request.
	ErrCodeEmbedderUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates an unknown file, folder or job.
	ErrCodeNotFound = -32004

	// ErrCodeConflict indicates the request collides with current state,
	// such as a second full scan.
	ErrCodeConflict = -32009

	// ErrCodeUnsupportedFile indicates a query file that is not audio or video.
	ErrCodeUnsupportedFile = -32015

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if te, ok := terrors.As(err); ok {
		return mapTrentonError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapTrentonError(te *terrors.Error) *MCPError {
	message := te.Message
	if te.Suggestion != "" {
		message = fmt.Sprintf("%s %s", te.Message, te.Suggestion)
	}

	code := ErrCodeInternalError
	switch te.Code {
	case terrors.ErrCodeInvalidInput, terrors.ErrCodeDimensionMismatch, terrors.ErrCodeConfigInvalid:
		code = ErrCodeInvalidParams
	case terrors.ErrCodeNotFound, terrors.ErrCodeFileNotFound:
		code = ErrCodeNotFound
	case terrors.ErrCodeFullScanRunning, terrors.ErrCodeJobFinished, terrors.ErrCodeAlreadyExists:
		code = ErrCodeConflict
	case terrors.ErrCodeUnsupportedFormat, terrors.ErrCodeNotAFile:
		code = ErrCodeUnsupportedFile
	case terrors.ErrCodeEmbedderUnavailable, terrors.ErrCodeEmbedderExhausted:
		code = ErrCodeEmbedderUnavailable
	case terrors.ErrCodeEmbedderTimeout:
		code = ErrCodeTimeout
	}
	return &MCPError{Code: code, Message: message}
}
