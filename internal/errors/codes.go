// Package errors provides structured error handling for fuzzysearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Document (field access) errors
//   - 3XX: Store errors
//   - 4XX: Input validation errors
//   - 5XX: Internal and phase-level errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryDocument indicates a field could not be read from a document.
	CategoryDocument Category = "DOCUMENT"
	// CategoryStore indicates errors raised at the document store boundary.
	CategoryStore Category = "STORE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound     = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      = "ERR_102_CONFIG_INVALID"
	ErrCodeDatabaseUnresolved = "ERR_103_DATABASE_UNRESOLVED"
	ErrCodeFieldPathInvalid   = "ERR_104_FIELD_PATH_INVALID"

	// Document errors (200-299)
	ErrCodeFieldMissing = "ERR_201_FIELD_MISSING"
	ErrCodeFieldType    = "ERR_202_FIELD_TYPE"

	// Store errors (300-399)
	ErrCodeStoreUnavailable  = "ERR_301_STORE_UNAVAILABLE"
	ErrCodeStoreTimeout      = "ERR_302_STORE_TIMEOUT"
	ErrCodeStoreBackpressure = "ERR_303_STORE_BACKPRESSURE"
	ErrCodeBulkWritePartial  = "ERR_304_BULK_WRITE_PARTIAL"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeDuplicateID  = "ERR_403_DUPLICATE_ID"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeBackfillIncomplete = "ERR_502_BACKFILL_INCOMPLETE"
	ErrCodeSearchFailed       = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexConflict      = "ERR_504_INDEX_CONFLICT"
	ErrCodeIndexFailed        = "ERR_505_INDEX_FAILED"
	ErrCodeBackfillLocked     = "ERR_506_BACKFILL_LOCKED"
	ErrCodeInterrupted        = "ERR_507_INTERRUPTED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "303" from "ERR_303_STORE_BACKPRESSURE"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryDocument
	case '3':
		return CategoryStore
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeIndexConflict, ErrCodeDatabaseUnresolved, ErrCodeDuplicateID:
		return SeverityFatal
	case ErrCodeFieldMissing, ErrCodeFieldType, ErrCodeQueryEmpty:
		return SeverityWarning
	}

	// Transient store conditions are warnings: they are retried locally
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether the code marks a transient store condition.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreTimeout, ErrCodeStoreBackpressure, ErrCodeBulkWritePartial:
		return true
	default:
		return false
	}
}
