package channel

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/webtex/kit"
	"github.com/hazyhaar/webtex/mainloop"
)

// HandlerMiddleware wraps a Handler, adding cross-cutting behaviour
// (logging, recovery, loop affinity) without changing the signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the request path).
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs every call with its duration.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "channel call failed",
					"channel", kit.GetChannel(ctx),
					"request_id", kit.GetRequestID(ctx),
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "channel call ok",
					"channel", kit.GetChannel(ctx),
					"request_id", kit.GetRequestID(ctx),
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Recovery returns a middleware that turns a handler panic into an error
// response instead of crashing the process.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "channel handler panic recovered",
						"error", &ErrPanic{Value: r},
						"panic", r,
						"stack", string(debug.Stack()))
					resp = encodeError(&MethodError{Code: CodeError, Message: "internal error"})
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// OnLoop returns a middleware that runs the handler on lp and waits for it.
// Handlers wrapped this way must not call back into a loop-bound channel.
func OnLoop(lp *mainloop.Loop) HandlerMiddleware {
	type result struct {
		out []byte
		err error
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ch := make(chan result, 1)
			if !lp.Post(func() {
				out, err := next(ctx, payload)
				ch <- result{out, err}
			}) {
				return nil, mainloop.ErrStopped
			}
			select {
			case r := <-ch:
				return r.out, r.err
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-lp.Done():
				return nil, mainloop.ErrStopped
			}
		}
	}
}
