package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// ledger rejections
	CodeLimitExceeded         Code = "LIMIT_EXCEEDED"
	CodeTierLimitReached      Code = "TIER_LIMIT_REACHED"
	CodeFundingNotConfigured  Code = "FUNDING_NOT_CONFIGURED"
	CodePayoutNotConfigured   Code = "PAYOUT_NOT_CONFIGURED"
	CodeBucketAlreadyComplete Code = "BUCKET_ALREADY_COMPLETE"
	CodeNotYetComplete        Code = "NOT_YET_COMPLETE"
	CodeSettlementPending     Code = "SETTLEMENT_PENDING"
	CodeNotCollector          Code = "NOT_COLLECTOR"
	CodeInvalidInvite         Code = "INVALID_INVITE"
	CodeProcessor             Code = "PROCESSOR_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// metadataByCode: status, retryable, public message, details exposed.
var metadataByCode = map[Code]Metadata{
	CodeValidation:            {http.StatusBadRequest, false, "validation failed", true},
	CodeUnauthorized:          {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:             {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:              {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:              {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict:         {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeIdempotency:           {http.StatusConflict, false, "idempotency key reused", true},
	CodeRateLimit:             {http.StatusTooManyRequests, false, "rate limit exceeded", false},
	CodeInternal:              {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:            {http.StatusServiceUnavailable, true, "dependency unavailable", true},
	CodeLimitExceeded:         {http.StatusUnprocessableEntity, false, "amount exceeds transaction limit", true},
	CodeTierLimitReached:      {http.StatusForbidden, false, "bucket limit reached for current tier", true},
	CodeFundingNotConfigured:  {http.StatusPreconditionFailed, false, "no funding instrument linked", false},
	CodePayoutNotConfigured:   {http.StatusPreconditionFailed, false, "no payout destination configured", false},
	CodeBucketAlreadyComplete: {http.StatusConflict, false, "bucket already complete", true},
	CodeNotYetComplete:        {http.StatusConflict, false, "bucket goal not yet reached", true},
	CodeSettlementPending:     {http.StatusConflict, true, "contributions still settling", true},
	CodeNotCollector:          {http.StatusForbidden, false, "only the collector may collect", false},
	CodeInvalidInvite:         {http.StatusBadRequest, false, "invalid invite", true},
	CodeProcessor:             {http.StatusBadGateway, true, "payment processor error", false},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
