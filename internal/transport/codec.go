package transport

import (
	"fmt"

	"github.com/bytedance/sonic"

	"yqhp/taskfarm/pkg/types"
)

var api = sonic.ConfigStd

// Encode serializes a message for the wire.
func Encode(msg *types.Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	data, err := api.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Tag, err)
	}
	return data, nil
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (*types.Message, error) {
	var msg types.Message
	if err := api.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
