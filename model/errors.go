package model

import (
	"errors"
	"fmt"

	"xdao.co/consign/consignment"
	"xdao.co/consign/persistence"
	"xdao.co/consign/storage"
)

type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrInvalidID          ErrorCode = "INVALID_ID"
	ErrInvalidConsignment ErrorCode = "INVALID_CONSIGNMENT"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrIDMismatch         ErrorCode = "ID_MISMATCH"
	ErrUnknownContract    ErrorCode = "UNKNOWN_CONTRACT"
	ErrResolver           ErrorCode = "RESOLVER"
	ErrInternal           ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	RuleID  string    `json:"ruleId,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// FromError classifies err into a CodedError. A CodedError anywhere in the
// chain is returned as is.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	out := &CodedError{Code: ErrInternal, Message: err.Error()}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		out.Code = ErrNotFound
	case errors.Is(err, storage.ErrInvalidID):
		out.Code = ErrInvalidID
	case errors.Is(err, storage.ErrIDMismatch), errors.Is(err, storage.ErrImmutable):
		out.Code = ErrIDMismatch
	case errors.Is(err, persistence.ErrUnknownContract):
		out.Code = ErrUnknownContract
	case persistence.IsKind(err, persistence.KindResolver):
		out.Code = ErrResolver
	case errors.Is(err, storage.ErrInvalidContent):
		out.Code = ErrInvalidConsignment
	}
	if rule := consignment.RuleID(err); rule != "" {
		out.RuleID = rule
		if out.Code == ErrInternal {
			out.Code = ErrInvalidConsignment
		}
	}
	return out
}
