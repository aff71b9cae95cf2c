package pongconnect

import (
	"encoding/json"
	"fmt"
)

// jsonCodec replaces the protobuf JSON codec so plain Go structs can be served.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", msg, err)
	}
	return nil
}
