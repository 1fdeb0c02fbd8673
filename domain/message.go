// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// A message is immutable except through an authorized edit or delete.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of the durable room log. To is the optional private
// recipient: a nil To is the only broadcast signal.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Room      string     `json:"room"`
	Sender    string     `json:"sender"`
	AvatarURL string     `json:"avatarUrl,omitempty"`
	To        *string    `json:"to,omitempty"`
	Text      string     `json:"text"`
	Images    []string   `json:"images,omitempty"`
	Seq       uint64     `json:"seq"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

func (m Message) Broadcast() bool {
	return m.To == nil
}
