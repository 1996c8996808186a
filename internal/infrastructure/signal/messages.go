package signal

import (
	"encoding/json"
	"errors"
	"strings"

	"murmur/internal/core/domain"
)

// Inbound event types.
const (
	TypeJoin          = "user:join"
	TypeMessageSend   = "message:send"
	TypeMessageEdit   = "message:edit"
	TypeMessageDelete = "message:delete"
	TypePing          = "ping"
)

// Outbound-only event types. Message and presence events use the names
// published by the chat services.
const (
	TypeJoined = "joined"
	TypeError  = "error"
	TypePong   = "pong"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type JoinedPayload struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	User         domain.Identity     `json:"user"`
}

type joinPayload struct {
	Token string `json:"token"`
}

type editPayload struct {
	ID       domain.MessageID `json:"id"`
	Content  *string          `json:"content"`
	ImageURL *string          `json:"imageUrl"`
}

type deletePayload struct {
	ID domain.MessageID `json:"id"`
}

var errMissingToken = errors.New("token is required")

// parseJoinToken accepts either {"token": "..."} or a bare JSON string.
func parseJoinToken(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errMissingToken
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		var p joinPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return "", err
		}
		token = p.Token
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(outbound{Type: eventType, Payload: payload})
}
