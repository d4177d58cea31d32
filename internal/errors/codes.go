// Package errors provides structured error handling for Trenton.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Embedder errors
//   - 4XX: Validation errors
//   - 5XX: Internal, store and scheduler errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryEmbedder indicates failures of the embedding backend.
	CategoryEmbedder Category = "EMBEDDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates store, scheduler and unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates a system-level fault; the running job fails.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but processing continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a transient condition that may be retried.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeTransientIO  = "ERR_201_TRANSIENT_IO"
	ErrCodeFileNotFound = "ERR_202_FILE_NOT_FOUND"
	ErrCodeNotAFile     = "ERR_203_NOT_A_FILE"
	ErrCodeDataDirLock  = "ERR_204_DATA_DIR_LOCKED"

	// Embedder errors (300-399)
	ErrCodeEmbedderTimeout     = "ERR_301_EMBEDDER_TIMEOUT"
	ErrCodeEmbedderExhausted   = "ERR_302_EMBEDDER_EXHAUSTED"
	ErrCodeEmbedderUnavailable = "ERR_303_EMBEDDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeUnsupportedFormat = "ERR_402_UNSUPPORTED_FORMAT"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeNotFound          = "ERR_404_NOT_FOUND"
	ErrCodeFullScanRunning   = "ERR_405_FULL_SCAN_RUNNING"
	ErrCodeJobFinished       = "ERR_406_JOB_FINISHED"
	ErrCodeAlreadyExists     = "ERR_407_ALREADY_EXISTS"
	ErrCodeFolderRemoved     = "ERR_408_FOLDER_REMOVED"

	// Internal errors (500-599)
	ErrCodeInternal             = "ERR_501_INTERNAL"
	ErrCodeStoreWriteConflict   = "ERR_502_STORE_WRITE_CONFLICT"
	ErrCodeStoreUnavailable     = "ERR_503_STORE_UNAVAILABLE"
	ErrCodeSchedulerUnavailable = "ERR_504_SCHEDULER_UNAVAILABLE"
	ErrCodeWatchOverflow        = "ERR_505_WATCH_OVERFLOW"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_TRANSIENT_IO")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryEmbedder
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeSchedulerUnavailable, ErrCodeDataDirLock:
		return SeverityFatal
	case ErrCodeWatchOverflow:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransientIO,
		ErrCodeEmbedderTimeout,
		ErrCodeEmbedderExhausted,
		ErrCodeStoreWriteConflict:
		return true
	default:
		return false
	}
}
