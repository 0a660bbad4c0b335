package amqp

import (
	"encoding/json"
	"time"

	"grana/internal/store"
)

// ChangeMessage announces over the broker that a collection changed for an
// owner. Like the in-process events it mirrors, it carries no payload;
// consumers re-read their snapshot. Origin identifies the publishing
// instance so it can skip its own messages.
type ChangeMessage struct {
	Origin     string    `json:"origin"`
	OwnerID    string    `json:"ownerId"`
	Collection string    `json:"collection"`
	At         time.Time `json:"at"`
}

func NewChangeMessage(origin string, e store.Event) *ChangeMessage {
	return &ChangeMessage{
		Origin:     origin,
		OwnerID:    e.OwnerID,
		Collection: e.Collection,
		At:         e.At,
	}
}

// Event converts the message back to a local change event.
func (m *ChangeMessage) Event() store.Event {
	return store.Event{OwnerID: m.OwnerID, Collection: m.Collection, At: m.At}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
