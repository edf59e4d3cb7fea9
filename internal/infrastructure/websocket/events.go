package websocket

import "encoding/json"

// Server to client event types.
const (
	EventNewMessage = "new_message"
)

// Event is the envelope pushed to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func EncodeEvent(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data})
}
