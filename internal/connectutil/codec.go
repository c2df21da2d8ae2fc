package connectutil

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// jsonCodec carries plain Go structs as JSON on the wire. It takes the
// "json" name so both the Connect and gRPC-Web protocols negotiate it.
type jsonCodec struct{}

// JSONCodec returns a Connect codec for non-protobuf message types.
func JSONCodec() connect.Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("json codec: marshal %T: %w", msg, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("json codec: unmarshal %T: %w", msg, err)
	}
	return nil
}
