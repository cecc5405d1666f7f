package repositories

import "fmt"

// ErrorCode enumerates machine readable causes for repository failures that are not plain
// persistence errors.
type ErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied invalid counter arguments.
	CounterErrorInvalidInput ErrorCode = "counter_invalid_input"
	// CounterErrorExhausted indicates the counter reached its configured max value.
	CounterErrorExhausted ErrorCode = "counter_exhausted"
	// OrderErrorInvalidInput indicates a malformed order query such as a bad page token.
	OrderErrorInvalidInput ErrorCode = "order_invalid_input"
	// OrderErrorSessionUsed indicates a provider payment session already paid for an order.
	OrderErrorSessionUsed ErrorCode = "order_session_used"
	// StockErrorInvalidInput indicates a malformed stock mutation request.
	StockErrorInvalidInput ErrorCode = "stock_invalid_input"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound ErrorCode = "stock_product_not_found"
)

// CodedError wraps domain-specific repository failures with a code.
type CodedError struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

// NewCodedError constructs a typed repository error.
func NewCodedError(code ErrorCode, message string, err error) *CodedError {
	if message == "" {
		message = string(code)
	}
	return &CodedError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the code represents a missing document.
func (e *CodedError) IsNotFound() bool {
	return e != nil && e.Code == StockErrorProductNotFound
}

// IsConflict reports whether the failure is a precondition conflict.
func (e *CodedError) IsConflict() bool {
	return e != nil && (e.Code == CounterErrorExhausted || e.Code == OrderErrorSessionUsed)
}

// IsUnavailable is always false; coded errors are never transient.
func (e *CodedError) IsUnavailable() bool {
	return false
}

var _ RepositoryError = (*CodedError)(nil)
