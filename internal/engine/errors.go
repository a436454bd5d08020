package engine

import (
	"errors"
	"fmt"
)

var (
	ErrMissingID      = errors.New("target has no server id yet")
	ErrNotTemp        = errors.New("target is already confirmed")
	ErrUnknownOrder   = errors.New("order is not open")
	ErrTargetNotFound = errors.New("target not found")
	ErrInvalidOrder   = errors.New("order id is required")
	ErrStopped        = errors.New("engine stopped")
)

// Operation names used in errors, logs and metrics
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Messages shown when the persistence layer gives no usable text
const (
	FallbackSaveMessage   = "failed to save target"
	FallbackDeleteMessage = "failed to delete target"
)

// UserMessager is implemented by persistence errors that carry a server
// provided, human-readable message.
type UserMessager interface {
	UserMessage() string
}

// OperationError reports a transport or server failure of a lifecycle call.
// The target list is left as it was before the call.
type OperationError struct {
	OrderID string
	Op      string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s target on order %s: %s", e.Op, e.OrderID, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func newOperationError(orderID, op string, err error) *OperationError {
	msg := ""
	var um UserMessager
	if errors.As(err, &um) {
		msg = um.UserMessage()
	}
	if msg == "" {
		msg = FallbackSaveMessage
		if op == OpDelete {
			msg = FallbackDeleteMessage
		}
	}
	return &OperationError{OrderID: orderID, Op: op, Message: msg, Err: err}
}
