package errs

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to every error produced by the engine.
const (
	CodeStatementNotFound    = "STATEMENT_NOT_FOUND"
	CodeResultMapNotFound    = "RESULT_MAP_NOT_FOUND"
	CodeCacheLockTimeout     = "CACHE_LOCK_TIMEOUT"
	CodeDiscriminatorCycle   = "DISCRIMINATOR_CYCLE"
	CodeAmbiguousConstructor = "AMBIGUOUS_CONSTRUCTOR"
	CodeNoConstructor        = "NO_CONSTRUCTOR"
	CodeCodecNotFound        = "CODEC_NOT_FOUND"
	CodeBatchFailed          = "BATCH_FAILED"
	CodeTooManyResults       = "TOO_MANY_RESULTS"
	CodeExecutorClosed       = "EXECUTOR_CLOSED"
	CodeInvalidMapping       = "INVALID_MAPPING"
	CodeInvalidTemplate      = "INVALID_TEMPLATE"
	CodeExpression           = "EXPRESSION"
	CodeResultShape          = "RESULT_SHAPE"
	CodeCacheSerialization   = "CACHE_SERIALIZATION"
	CodeImmutableKey         = "IMMUTABLE_CACHE_KEY"
	CodeReflection           = "REFLECTION"
	CodeRecursiveQuery       = "RECURSIVE_QUERY"
	CodeExecution            = "EXECUTION"
	CodeTransaction          = "TRANSACTION"
	CodeInvalidConfig        = "INVALID_CONFIG"
)

// New creates a categorized error carrying the given text code.
func New(code, message string, category goerrors.Category) *goerrors.Error {
	return goerrors.New(message, category).WithTextCode(code)
}

// Wrap wraps err with a message. When err already is a *goerrors.Error its
// category and text code are kept, otherwise the given ones are used.
func Wrap(err error, code, message string, category goerrors.Category) *goerrors.Error {
	if err == nil {
		return nil
	}
	wrapped := goerrors.Wrap(err, category, message)
	if wrapped.TextCode == "" {
		wrapped.TextCode = code
	}
	return wrapped
}

// Retryable creates an error the caller may retry, such as a lock wait that
// timed out.
func Retryable(code, message string, category goerrors.Category) *goerrors.RetryableError {
	return goerrors.NewRetryable(message, category).WithTextCode(code)
}

// Code returns the text code of the first engine error in the chain.
func Code(err error) string {
	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		return rerr.TextCode
	}
	var gerr *goerrors.Error
	if errors.As(err, &gerr) {
		return gerr.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// IsRetryable reports whether any error in the chain asks to be retried.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// Metadata returns the metadata attached to the first engine error in the chain.
func Metadata(err error) map[string]any {
	var rerr *goerrors.RetryableError
	if errors.As(err, &rerr) && rerr.BaseError != nil {
		return rerr.Metadata
	}
	var gerr *goerrors.Error
	if errors.As(err, &gerr) {
		return gerr.Metadata
	}
	return nil
}
