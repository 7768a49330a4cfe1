package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/realmsync/internal/queryir"
)

// ErrSubscriptionClosed is returned by Subscription.Next once the
// subscription is closed and its queue is empty.
var ErrSubscriptionClosed = errors.New("subscription closed")

// QueryErrorCode categorizes query construction errors.
type QueryErrorCode string

const (
	// ErrCodeInvalidFirstFragment: the chain does not start with Has or HasValue.
	ErrCodeInvalidFirstFragment QueryErrorCode = queryir.CodeInvalidFirstFragment

	// ErrCodeEmptyQuery: the chain has no fragments.
	ErrCodeEmptyQuery QueryErrorCode = queryir.CodeEmptyQuery

	// ErrCodeInvalidFragment: any other construction rule was broken.
	ErrCodeInvalidFragment QueryErrorCode = "INVALID_FRAGMENT"

	// ErrCodeEngineClosed: Register was called after Close.
	ErrCodeEngineClosed QueryErrorCode = "ENGINE_CLOSED"
)

// QueryError reports an ill-formed query at registration time.
// Index is the offending fragment's position in the chain.
type QueryError struct {
	Code    QueryErrorCode
	Message string
	Index   int

	// Problems holds every problem found, the first of which set Code.
	Problems []queryir.Problem
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s (fragment %d)", e.Code, e.Message, e.Index)
}

// IsQueryError reports whether err is or wraps a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// HasCode reports whether err is or wraps a QueryError with the code.
func HasCode(err error, code QueryErrorCode) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// newQueryError converts validation problems into a QueryError.
func newQueryError(problems []queryir.Problem) *QueryError {
	first := problems[0]
	code := QueryErrorCode(first.Code)
	switch code {
	case ErrCodeInvalidFirstFragment, ErrCodeEmptyQuery:
	default:
		code = ErrCodeInvalidFragment
	}
	return &QueryError{
		Code:     code,
		Message:  first.Message,
		Index:    first.Index,
		Problems: problems,
	}
}
