package daemon

import (
	"encoding/json"
	"errors"
	"fmt"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
	"github.com/Aman-CERP/trenton/internal/jobs"
	"github.com/Aman-CERP/trenton/internal/media"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing          = "ping"
	MethodStatus        = "status"
	MethodFolderAdd     = "folder.add"
	MethodFolderRemove  = "folder.remove"
	MethodFolderList    = "folder.list"
	MethodIndexTrigger  = "index.trigger"
	MethodJobStatus     = "job.status"
	MethodJobCancel     = "job.cancel"
	MethodSearch        = "search"
	MethodSearchSimilar = "search.similar"
	MethodStats         = "stats"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Application error codes. Data.Code carries the Trenton error code.
const (
	ErrCodeNotFound        = -32004
	ErrCodeConflict        = -32009
	ErrCodeUnavailable     = -32003
	ErrCodeUnsupportedFile = -32015
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the structured error behind a JSON-RPC error.
type ErrorData struct {
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// Err converts the wire error back into a Trenton error when it carries a
// code, so callers can match it with errors.Is.
func (e *Error) Err() error {
	if e.Data == nil || e.Data.Code == "" {
		return e
	}
	te := terrors.New(e.Data.Code, e.Message, nil)
	if e.Data.Suggestion != "" {
		te = te.WithSuggestion(e.Data.Suggestion)
	}
	return te
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// errorResponse maps err onto a JSON-RPC error, keeping its Trenton code.
func errorResponse(id string, err error) Response {
	te, ok := terrors.As(err)
	if !ok {
		return NewErrorResponse(id, ErrCodeInternalError, err.Error())
	}

	code := ErrCodeInternalError
	switch {
	case errors.Is(err, terrors.ErrInvalidInput), te.Code == terrors.ErrCodeDimensionMismatch:
		code = ErrCodeInvalidParams
	case errors.Is(err, terrors.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, terrors.ErrFullScanRunning),
		errors.Is(err, terrors.ErrJobFinished),
		errors.Is(err, terrors.ErrAlreadyExists):
		code = ErrCodeConflict
	case errors.Is(err, terrors.ErrUnsupportedFormat):
		code = ErrCodeUnsupportedFile
	case te.Code == terrors.ErrCodeSchedulerUnavailable,
		te.Code == terrors.ErrCodeStoreUnavailable,
		te.Code == terrors.ErrCodeEmbedderUnavailable:
		code = ErrCodeUnavailable
	}

	resp := NewErrorResponse(id, code, te.Message)
	resp.Error.Data = &ErrorData{Code: te.Code, Suggestion: te.Suggestion}
	return resp
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

// FolderAddParams are the parameters of folder.add.
type FolderAddParams struct {
	Path string `json:"path"`

	// Modality filters the files indexed: "all" (default), "audio" or "video".
	Modality string `json:"modality,omitempty"`
}

// Validate checks that required fields are present.
func (p *FolderAddParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// FolderRemoveParams are the parameters of folder.remove.
type FolderRemoveParams struct {
	ID int64 `json:"id"`
}

// Validate checks that required fields are present.
func (p *FolderRemoveParams) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("id is required")
	}
	return nil
}

// IndexTriggerParams are the parameters of index.trigger.
type IndexTriggerParams struct {
	// Mode is "full" or "incremental". Empty picks by whether Paths is set.
	Mode  jobs.Mode `json:"mode,omitempty"`
	Paths []string  `json:"paths,omitempty"`
}

// Validate checks that required fields are present.
func (p *IndexTriggerParams) Validate() error {
	return nil
}

// JobParams are the parameters of job.status and job.cancel. job.status
// with an empty ID lists every retained job.
type JobParams struct {
	ID string `json:"id,omitempty"`
}

// Validate checks that required fields are present.
func (p *JobParams) Validate() error {
	return nil
}

// SearchParams are the parameters of search. Exactly one of Vector and
// MediaPath is set.
type SearchParams struct {
	Vector []float32 `json:"vector,omitempty"`

	// MediaPath is an audio or video file on the daemon's host to embed as
	// the query.
	MediaPath string `json:"media_path,omitempty"`

	// Modality is the modality searched. With MediaPath it defaults to the
	// query file's own.
	Modality  media.Modality `json:"modality,omitempty"`
	TopK      int            `json:"top_k,omitempty"`
	Threshold *float64       `json:"threshold,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	switch {
	case len(p.Vector) == 0 && p.MediaPath == "":
		return fmt.Errorf("vector or media_path is required")
	case len(p.Vector) > 0 && p.MediaPath != "":
		return fmt.Errorf("vector and media_path are mutually exclusive")
	case len(p.Vector) > 0 && p.Modality == "":
		return fmt.Errorf("modality is required with vector")
	}
	return nil
}

// SimilarParams are the parameters of search.similar.
type SimilarParams struct {
	FileID int64 `json:"file_id"`
	TopK   int   `json:"top_k,omitempty"`
}

// Validate checks that required fields are present.
func (p *SimilarParams) Validate() error {
	if p.FileID <= 0 {
		return fmt.Errorf("file_id is required")
	}
	return nil
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool              `json:"running"`
	PID     int               `json:"pid"`
	Uptime  string            `json:"uptime"`
	Health  string            `json:"health"`
	Checks  map[string]string `json:"checks,omitempty"`
	Watcher string            `json:"watcher"`
}
