package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ExpenseSyncMessage asks the worker to push one pending expense to the
// record store. The worker reads the full record from the pending cache.
type ExpenseSyncMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseSyncMessage(id string) *ExpenseSyncMessage {
	return &ExpenseSyncMessage{ID: id, Timestamp: time.Now().UTC()}
}

func (m *ExpenseSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseSyncMessageFromJSON decodes a message body. A body without an id is
// malformed.
func ExpenseSyncMessageFromJSON(data []byte) (*ExpenseSyncMessage, error) {
	var msg ExpenseSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.ID) == "" {
		return nil, errors.New("sync message without id")
	}
	return &msg, nil
}
