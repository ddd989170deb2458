package chat

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// DecodeMessage parses and validates a JSON message pushed by the server.
// Malformed payloads are reported as ErrNetwork.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, NewError(ErrNetwork, "decode message", errors.Wrap(err, "invalid json"))
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// EncodeOutbound serializes an outbound frame.
func EncodeOutbound(m OutboundMessage) ([]byte, error) {
	if m.ConversationID == "" {
		return nil, errors.New("outbound message: conversation_id is empty")
	}
	if m.RecipientID == "" {
		return nil, errors.New("outbound message: recipient_id is empty")
	}
	return json.Marshal(m)
}
