package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MethodCall is a named request with a structured argument payload.
type MethodCall struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Response is either a result (possibly JSON null) or an error.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *MethodError    `json:"error,omitempty"`
}

// Decode unmarshals the result into v.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return fmt.Errorf("channel: empty result")
	}
	return json.Unmarshal(r.Result, v)
}

// IsNull reports whether the result is absent or JSON null.
func (r *Response) IsNull() bool {
	return r.Error == nil && (len(r.Result) == 0 || bytes.Equal(bytes.TrimSpace(r.Result), []byte("null")))
}

// EncodeCall builds the wire form of a call. A nil args is sent as absent.
func EncodeCall(method string, args any) ([]byte, error) {
	call := MethodCall{Method: method}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("channel: encode args: %w", err)
		}
		call.Args = raw
	}
	return json.Marshal(call)
}

// DecodeCall parses the wire form of a call.
func DecodeCall(payload []byte) (*MethodCall, error) {
	var call MethodCall
	if err := json.Unmarshal(payload, &call); err != nil {
		return nil, fmt.Errorf("channel: decode call: %w", err)
	}
	if call.Method == "" {
		return nil, fmt.Errorf("channel: decode call: missing method")
	}
	return &call, nil
}

// encodeResult marshals a successful result.
func encodeResult(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("channel: encode result: %w", err)
	}
	return json.Marshal(Response{Result: raw})
}

// encodeError marshals an error envelope.
func encodeError(e *MethodError) []byte {
	out, _ := json.Marshal(Response{Error: e})
	return out
}

// ArgsMap returns the arguments as a structured mapping. Anything else
// (absent, null, array, scalar) is rejected as invalid arguments.
func (c *MethodCall) ArgsMap() (map[string]any, error) {
	if len(c.Args) == 0 {
		return nil, InvalidArguments()
	}
	var v any
	if err := json.Unmarshal(c.Args, &v); err != nil {
		return nil, InvalidArguments()
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, InvalidArguments()
	}
	return m, nil
}

// StringField returns m[key] if it is present and a string.
func StringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MapField returns m[key] if it is present and a structured mapping.
func MapField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	return sub, ok
}
