// Package kit holds the request plumbing shared by the bridge transports:
// context keys and the MCP tool adapter.
package kit

import "context"

type contextKey string

const (
	TransportKey  contextKey = "kit_transport" // "inproc", "http", "mcp"
	RequestIDKey  contextKey = "kit_request_id"
	ChannelKey    contextKey = "kit_channel"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "inproc"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithChannel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ChannelKey, name)
}
func GetChannel(ctx context.Context) string {
	v, _ := ctx.Value(ChannelKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}
