package channel

import "fmt"

// Error codes carried in Response.Error.
const (
	CodeInvalidArguments = "invalid_arguments"
	CodeNotImplemented   = "not_implemented"
	CodeError            = "error"
)

// ErrChannelNotFound is returned when Call targets an unregistered channel.
type ErrChannelNotFound struct {
	Channel string
}

func (e *ErrChannelNotFound) Error() string {
	return fmt.Sprintf("channel: not registered: %s", e.Channel)
}

// MethodError is an error answered to the caller inside the response.
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *MethodError) Error() string {
	return e.Message
}

// InvalidArguments is the answer to a malformed argument payload.
func InvalidArguments() *MethodError {
	return &MethodError{Code: CodeInvalidArguments, Message: "Invalid arguments"}
}

// NotImplemented is the answer to an unknown method.
func NotImplemented() *MethodError {
	return &MethodError{Code: CodeNotImplemented, Message: "not implemented"}
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "channel: handler panicked"
}
