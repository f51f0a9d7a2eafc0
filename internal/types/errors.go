package types

import "errors"

// Error classes shared by every subsystem. Wrap them with fmt.Errorf("%w")
// and classify with errors.Is.
var (
	// ErrParse marks a malformed script line or token. Never fatal.
	ErrParse = errors.New("parse error")
	// ErrConfig marks a missing or malformed directory table.
	ErrConfig = errors.New("config error")
	// ErrChannelRange marks a DMX channel outside 1..512.
	ErrChannelRange = errors.New("channel out of range")
	// ErrDevice marks a missing or unopenable serial adapter.
	ErrDevice = errors.New("device error")
	// ErrComm marks a serial or PLC write failure.
	ErrComm = errors.New("communication error")
	// ErrNetwork marks a network DMX send failure.
	ErrNetwork = errors.New("network error")
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
