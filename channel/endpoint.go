package channel

import (
	"context"
	"errors"
)

// MethodFunc handles one method of a channel. Returning a *MethodError
// answers with its code; any other error is answered with CodeError.
type MethodFunc func(ctx context.Context, call *MethodCall) (any, error)

// NewEndpoint builds a channel Handler from a method table. Unknown methods
// are answered with NotImplemented, undecodable calls with InvalidArguments.
func NewEndpoint(methods map[string]MethodFunc) Handler {
	table := make(map[string]MethodFunc, len(methods))
	for name, fn := range methods {
		table[name] = fn
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		call, err := DecodeCall(payload)
		if err != nil {
			return encodeError(InvalidArguments()), nil
		}
		fn, ok := table[call.Method]
		if !ok {
			return encodeError(NotImplemented()), nil
		}
		result, err := fn(ctx, call)
		if err != nil {
			return encodeError(asMethodError(err)), nil
		}
		return encodeResult(result)
	}
}

// Unimplemented answers every call with NotImplemented.
func Unimplemented() Handler {
	return func(context.Context, []byte) ([]byte, error) {
		return encodeError(NotImplemented()), nil
	}
}

func asMethodError(err error) *MethodError {
	var me *MethodError
	if errors.As(err, &me) {
		return me
	}
	return &MethodError{Code: CodeError, Message: err.Error()}
}
