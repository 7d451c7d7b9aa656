package domain

import "time"

// MessageCategory classifies notification messages.
type MessageCategory string

// MessageCategoryInvite is sent to each user added to a team.
const MessageCategoryInvite MessageCategory = "INVITE"

// Message is a notification addressed to one user.
type Message struct {
	ID         string          `bson:"_id" json:"id"`
	Category   MessageCategory `bson:"category" json:"category"`
	Content    string          `bson:"content" json:"content"`
	SenderID   string          `bson:"sender" json:"sender_id"`
	ReceiverID string          `bson:"receiver" json:"receiver_id"`
	TeamID     string          `bson:"teamId,omitempty" json:"team_id,omitempty"`
	CreatedAt  time.Time       `bson:"createdAt" json:"created_at"`
}
