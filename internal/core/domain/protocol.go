package domain

import "encoding/json"

// Websocket message types.
const (
	MessageSubscribe    = "SUBSCRIBE"
	MessageUnsubscribe  = "UNSUBSCRIBE"
	MessagePing         = "PING"
	MessageSubscribed   = "SUBSCRIBED"
	MessageUnsubscribed = "UNSUBSCRIBED"
	MessageEvent        = "EVENT"
	MessageError        = "ERROR"
	MessagePong         = "PONG"
)

// Error codes carried by ERROR messages.
const (
	CodeForbidden      = "FORBIDDEN"
	CodeInvalidChannel = "INVALID_CHANNEL"
	CodeUnavailable    = "UNAVAILABLE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeBadRequest     = "BAD_REQUEST"
)

// ClientMessage is sent from a realtime client to the server.
type ClientMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// ServerMessage is sent from the server to a realtime client.
type ServerMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}
