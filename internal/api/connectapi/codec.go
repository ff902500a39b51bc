package connectapi

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec carries plain Go structs as JSON instead of protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// WithJSON configures a handler or client to use the plain JSON codec.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
